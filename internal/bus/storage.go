package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"staffing-board/internal/kvstore"
	"staffing-board/internal/telemetry"
)

const (
	defaultStorageKey   = kvstore.DefaultPrefix + "bus_events"
	defaultStorageTTL   = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxEntries   = 128
	publishAttempts     = 5
)

// StorageOptions tunes a StorageTransport.
type StorageOptions struct {
	Key          string
	TTL          time.Duration
	PollInterval time.Duration
	MaxEntries   int
	Logger       *slog.Logger
	Now          func() time.Time
}

type storedEvent struct {
	ID    string          `json:"id"`
	At    int64           `json:"at"`
	Event json.RawMessage `json:"event"`
}

// StorageTransport relays envelopes through a short-lived ring of recent
// events kept under one key of a shared kvstore backend. Subscribers poll
// the key; backends implementing kvstore.Watcher wake them early.
type StorageTransport struct {
	backend  kvstore.Backend
	key      string
	ttl      time.Duration
	interval time.Duration
	max      int
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// NewStorageTransport relays through backend. The backend is not closed by Close.
func NewStorageTransport(backend kvstore.Backend, opts StorageOptions) *StorageTransport {
	t := &StorageTransport{
		backend:  backend,
		key:      opts.Key,
		ttl:      opts.TTL,
		interval: opts.PollInterval,
		max:      opts.MaxEntries,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if t.key == "" {
		t.key = defaultStorageKey
	}
	if t.ttl <= 0 {
		t.ttl = defaultStorageTTL
	}
	if t.interval <= 0 {
		t.interval = defaultPollInterval
	}
	if t.max <= 0 {
		t.max = defaultMaxEntries
	}
	if t.logger == nil {
		t.logger = telemetry.Discard()
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

func (s *StorageTransport) Publish(ctx context.Context, env Envelope) error {
	raw, err := Encode(env)
	if err != nil {
		return err
	}
	for attempt := 0; attempt < publishAttempts; attempt++ {
		entries, version, err := s.read(ctx)
		if err != nil {
			return err
		}
		entries = s.trim(append(entries, storedEvent{ID: env.ID, At: s.now().UnixMilli(), Event: raw}))
		data, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("encode event ring: %w", err)
		}
		_, err = s.backend.Save(ctx, s.key, data, version)
		if errors.Is(err, kvstore.ErrConcurrentModification) {
			continue
		}
		if err != nil {
			return fmt.Errorf("write event ring: %w", err)
		}
		return nil
	}
	return fmt.Errorf("write event ring: %w", kvstore.ErrConcurrentModification)
}

// read returns the ring and its version. Malformed rings read as empty.
func (s *StorageTransport) read(ctx context.Context) ([]storedEvent, int64, error) {
	entry, found, err := s.backend.Load(ctx, s.key)
	if err != nil {
		return nil, 0, fmt.Errorf("read event ring: %w", err)
	}
	if !found {
		return nil, 0, nil
	}
	var entries []storedEvent
	if err := json.Unmarshal(entry.Data, &entries); err != nil {
		s.logger.Warn("discarding malformed event ring", "key", s.key, "err", err)
		return nil, entry.Version, nil
	}
	return entries, entry.Version, nil
}

func (s *StorageTransport) trim(entries []storedEvent) []storedEvent {
	cutoff := s.now().Add(-s.ttl).UnixMilli()
	kept := entries[:0]
	for _, e := range entries {
		if e.At >= cutoff {
			kept = append(kept, e)
		}
	}
	if len(kept) > s.max {
		kept = kept[len(kept)-s.max:]
	}
	return kept
}

func (s *StorageTransport) Subscribe(ctx context.Context, h Handler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("storage subscribe: transport closed")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancels = append(s.cancels, cancel)
	// Registered under the lock so Close waits for this subscriber.
	s.wg.Add(1)
	s.mu.Unlock()

	// Events already in the ring predate this subscriber.
	entries, _, err := s.read(ctx)
	if err != nil {
		cancel()
		s.wg.Done()
		return err
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.ID] = struct{}{}
	}

	wake := make(chan struct{}, 1)
	if w, ok := s.backend.(kvstore.Watcher); ok {
		err := w.Watch(ctx, s.key, func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		})
		if err != nil {
			s.logger.Warn("event ring watch unavailable, polling only", "key", s.key, "err", err)
		}
	}

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-wake:
			}
			seen = s.poll(ctx, seen, h)
		}
	}()
	return nil
}

// poll delivers unseen events and returns the ids still in the ring.
func (s *StorageTransport) poll(ctx context.Context, seen map[string]struct{}, h Handler) map[string]struct{} {
	entries, _, err := s.read(ctx)
	if err != nil {
		s.logger.Warn("poll event ring", "key", s.key, "err", err)
		return seen
	}
	current := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		current[e.ID] = struct{}{}
		if _, ok := seen[e.ID]; ok {
			continue
		}
		env, err := Decode(e.Event)
		if err != nil {
			s.logger.Warn("drop undecodable event", "id", e.ID, "err", err)
			continue
		}
		h(env)
	}
	return current
}

func (s *StorageTransport) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
	return nil
}
