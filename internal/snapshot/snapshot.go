// Package snapshot exports the board's collections as a single JSON document
// and uploads it on a schedule.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"staffing-board/internal/models"
	"staffing-board/internal/repo"
	"staffing-board/internal/roster"
	"staffing-board/internal/telemetry"
)

// Snapshot is the exported document.
type Snapshot struct {
	TakenAt      string               `json:"takenAt"`
	Jobs         []models.Job         `json:"jobs"`
	Applications []models.Application `json:"applications"`
	Threads      []models.Thread      `json:"threads"`
	Messages     []models.Message     `json:"messages"`
	Workers      []models.Candidate   `json:"workers"`
}

// Exporter collects and uploads snapshots.
type Exporter struct {
	repo     *repo.Repository
	roster   *roster.Roster
	uploader Uploader
	prefix   string
	logger   *slog.Logger
	now      func() time.Time
}

// NewExporter uploads to keys below prefix. roster may be nil.
func NewExporter(r *repo.Repository, ro *roster.Roster, up Uploader, prefix string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = telemetry.Discard()
	}
	if prefix == "" {
		prefix = "snapshots"
	}
	return &Exporter{repo: r, roster: ro, uploader: up, prefix: prefix, logger: logger, now: time.Now}
}

// Collect reads every collection.
func (e *Exporter) Collect(ctx context.Context) Snapshot {
	snap := Snapshot{
		TakenAt:      e.now().UTC().Format(time.RFC3339),
		Jobs:         e.repo.Jobs.List(ctx),
		Applications: e.repo.Applications.List(ctx),
		Threads:      e.repo.Threads.List(ctx),
		Messages:     e.repo.Threads.AllMessages(ctx),
		Workers:      []models.Candidate{},
	}
	if e.roster != nil {
		snap.Workers = e.roster.List(ctx)
	}
	return snap
}

// Export uploads a fresh snapshot and returns where it was stored.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	snap := e.Collect(ctx)
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := fmt.Sprintf("%s/%s.json", e.prefix, e.now().UTC().Format("20060102T150405Z"))
	loc, err := e.uploader.Upload(ctx, key, body, "application/json")
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	telemetry.SnapshotsUploaded.Inc()
	e.logger.Info("snapshot uploaded", "location", loc, "jobs", len(snap.Jobs), "bytes", len(body))
	return loc, nil
}
