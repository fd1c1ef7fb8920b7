package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staffing-board/internal/api"
	"staffing-board/internal/config"
	"staffing-board/internal/platform"
	"staffing-board/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if report := cfg.Validate(); !report.Valid {
		for _, c := range report.Checks {
			if !c.Valid {
				logger.Warn("configuration problem", "key", c.Key, "error", c.Error)
			}
		}
	}

	p, err := platform.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open platform: %v", err)
	}
	defer p.Close()

	server := api.New(cfg, api.Deps{
		Repo:     p.Repo,
		Notifier: p.Notifier(),
		Roster:   p.Roster,
		Logger:   logger,
	})
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info("api listening", "port", cfg.HTTPPort, "store", cfg.StoreBackend, "bus", cfg.BusTransport)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
