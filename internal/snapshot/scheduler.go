package snapshot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs exports on a cron spec, e.g. "0 * * * *" or "@every 6h".
type Scheduler struct {
	cron     *cron.Cron
	exporter *Exporter
	logger   *slog.Logger
	entry    cron.EntryID
}

// NewScheduler validates spec and registers the export.
func NewScheduler(ctx context.Context, spec string, exporter *Exporter) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse snapshot schedule %q: %w", spec, err)
	}
	s := &Scheduler{
		cron:     cron.New(),
		exporter: exporter,
		logger:   exporter.logger,
	}
	entry, err := s.cron.AddFunc(spec, func() { s.run(ctx) })
	if err != nil {
		return nil, fmt.Errorf("schedule snapshot: %w", err)
	}
	s.entry = entry
	return s, nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.exporter.Export(ctx); err != nil {
		s.logger.Error("scheduled snapshot failed", "err", err)
	}
}

// Start begins running exports in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("snapshot schedule started", "next", s.cron.Entry(s.entry).Next)
}

// Stop halts the schedule and waits for a running export to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
