package roster

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"staffing-board/internal/models"
	"staffing-board/internal/store"
)

// Feed is an external source of truth for the roster.
type Feed interface {
	// List returns the full candidate list.
	List(ctx context.Context) ([]models.Candidate, error)
	// Wait blocks until the list may have changed.
	Wait(ctx context.Context) error
}

// WorkersChannel is the Postgres NOTIFY channel fired by the workers table.
const WorkersChannel = "workers_changed"

// PostgresFeed reads the workers table and waits on its change notifications.
type PostgresFeed struct {
	store *store.Store
}

// NewPostgresFeed wraps an open store.
func NewPostgresFeed(st *store.Store) *PostgresFeed {
	return &PostgresFeed{store: st}
}

func (f *PostgresFeed) List(ctx context.Context) ([]models.Candidate, error) {
	return f.store.ListWorkers(ctx)
}

func (f *PostgresFeed) Wait(ctx context.Context) error {
	return f.store.WaitForWorkersChange(ctx, WorkersChannel)
}

// SyncOptions tunes the retry backoff of Sync.
type SyncOptions struct {
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Sync mirrors the feed into the roster until ctx is done. Each change
// notification triggers a full reload; failures are retried with backoff.
func (r *Roster) Sync(ctx context.Context, feed Feed, opts SyncOptions) error {
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = time.Second
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = 30 * opts.BackoffInitial
	}

	failures := 0
	for {
		err := r.syncOnce(ctx, feed)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			failures = 0
			if err = feed.Wait(ctx); err == nil {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
		}

		failures++
		wait := backoffWithJitter(opts.BackoffInitial, opts.BackoffMax, failures)
		r.logger.Warn("roster sync failed", "err", err, "attempt", failures, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *Roster) syncOnce(ctx context.Context, feed Feed) error {
	candidates, err := feed.List(ctx)
	if err != nil {
		return err
	}
	if candidates == nil {
		candidates = []models.Candidate{}
	}
	if err := r.Replace(ctx, candidates); err != nil {
		return err
	}
	r.logger.Info("roster synced", "candidates", len(candidates))
	return nil
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	if wait < 2 {
		return wait
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
