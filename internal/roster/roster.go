// Package roster keeps the candidate roster: tradespeople reachable through
// the messaging channel.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"staffing-board/internal/gateway"
	"staffing-board/internal/kvstore"
	"staffing-board/internal/models"
	"staffing-board/internal/telemetry"
)

// Collection is the store collection holding candidates.
const Collection = "workers"

// Roster manages candidates in the key/value store.
type Roster struct {
	mu      sync.Mutex
	workers *kvstore.Collection[models.Candidate]
	gateway gateway.Gateway
	logger  *slog.Logger
	now     func() time.Time
}

// Options configures a Roster.
type Options struct {
	// Gateway sends the welcome message to new followers; nil skips it.
	Gateway gateway.Gateway
	Logger  *slog.Logger
	Now     func() time.Time
}

// New binds the roster to store.
func New(store *kvstore.Store, opts Options) *Roster {
	if opts.Logger == nil {
		opts.Logger = telemetry.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Roster{
		workers: kvstore.NewCollection[models.Candidate](store, Collection),
		gateway: opts.Gateway,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Seed stores the demo candidates when the roster has never been written.
// An emptied roster stays empty.
func (r *Roster) Seed(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workers.Exists(ctx) {
		return false, nil
	}
	if err := r.workers.Put(ctx, DemoCandidates()); err != nil {
		return false, fmt.Errorf("seed roster: %w", err)
	}
	return true, nil
}

// List returns candidates in stored order.
func (r *Roster) List(ctx context.Context) []models.Candidate {
	return r.workers.GetAll(ctx)
}

// Get returns the candidate with id.
func (r *Roster) Get(ctx context.Context, id string) (models.Candidate, bool) {
	return r.workers.Find(ctx, id)
}

// Upsert merges c into the stored candidate with the same id, keeping stored
// values for fields c leaves empty, or appends c.
func (r *Roster) Upsert(ctx context.Context, c models.Candidate) (models.Candidate, error) {
	if strings.TrimSpace(c.ID) == "" {
		return models.Candidate{}, fmt.Errorf("upsert candidate: id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsertLocked(ctx, c)
}

func (r *Roster) upsertLocked(ctx context.Context, c models.Candidate) (models.Candidate, error) {
	items := r.workers.GetAll(ctx)
	merged := c
	found := false
	for i := range items {
		if items[i].ID == c.ID {
			merged = merge(items[i], c)
			items[i] = merged
			found = true
			break
		}
	}
	if !found {
		items = append(items, merged)
	}
	if err := r.workers.Put(ctx, items); err != nil {
		return models.Candidate{}, fmt.Errorf("upsert candidate %s: %w", c.ID, err)
	}
	return merged, nil
}

func merge(dst, src models.Candidate) models.Candidate {
	set := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	set(&dst.Name, src.Name)
	set(&dst.Trade, src.Trade)
	set(&dst.Pref, src.Pref)
	set(&dst.City, src.City)
	set(&dst.Source, src.Source)
	set(&dst.LastSeenAt, src.LastSeenAt)
	if src.Status != "" {
		dst.Status = src.Status
	}
	return dst
}

// Remove deletes the candidate. It reports false when no candidate had the id.
func (r *Roster) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.workers.GetAll(ctx)
	kept := items[:0]
	for _, c := range items {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(items) {
		return false, nil
	}
	if err := r.workers.Put(ctx, kept); err != nil {
		return false, fmt.Errorf("remove candidate %s: %w", id, err)
	}
	return true, nil
}

// Replace overwrites the roster with candidates, as read from a feed.
func (r *Roster) Replace(ctx context.Context, candidates []models.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.workers.Put(ctx, candidates); err != nil {
		return fmt.Errorf("replace roster: %w", err)
	}
	return nil
}

// MaskUserID hides the middle of a channel user id for display. Ids of four
// characters or fewer are shown as is.
func MaskUserID(id string) string {
	runes := []rune(id)
	n := len(runes)
	if n <= 4 {
		return id
	}
	return string(runes[:1]) + strings.Repeat("x", max(0, n-8)) + "..." + string(runes[n-4:])
}
