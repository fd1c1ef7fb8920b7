package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"staffing-board/internal/bus"
	"staffing-board/internal/config"
	"staffing-board/internal/platform"
	"staffing-board/internal/roster"
	"staffing-board/internal/snapshot"
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

	p, err := platform.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open platform: %v", err)
	}
	defer p.Close()

	p.Bus.On(bus.AnyEvent, func(env bus.Envelope) {
		logger.Info("event", "type", env.Type, "id", env.ID, "origin", env.Origin)
	})

	if cfg.RosterFeed {
		go func() {
			err := p.Roster.Sync(ctx, roster.NewPostgresFeed(p.Postgres), roster.SyncOptions{
				BackoffInitial: cfg.BackoffInitial,
				BackoffMax:     cfg.BackoffMax,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("roster sync stopped", "err", err)
			}
		}()
	}

	if cfg.SnapshotSchedule != "" {
		uploader, err := p.SnapshotUploader(ctx)
		if err != nil {
			log.Fatalf("init snapshot uploader: %v", err)
		}
		exporter := snapshot.NewExporter(p.Repo, p.Roster, uploader, cfg.SnapshotPrefix, logger)
		sched, err := snapshot.NewScheduler(ctx, cfg.SnapshotSchedule, exporter)
		if err != nil {
			log.Fatalf("snapshot schedule: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Warn("metrics server stopped", "err", err)
		}
	}()

	logger.Info("worker started", "bus", cfg.BusTransport, "roster_feed", cfg.RosterFeed, "snapshots", cfg.SnapshotSchedule)
	<-ctx.Done()
	logger.Info("worker stopping")
}
