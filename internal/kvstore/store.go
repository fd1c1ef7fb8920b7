package kvstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"staffing-board/internal/telemetry"
)

// DefaultPrefix namespaces collection keys in the backend.
const DefaultPrefix = "shokuninboshu_"

// Options tunes a Store.
type Options struct {
	Prefix string
	// Strict enables versioned writes: a write based on a stale read returns
	// ErrConcurrentModification instead of overwriting.
	Strict bool
	Logger *slog.Logger
}

// Store maps collection names onto backend keys and keeps an in-process
// fallback copy of every collection it has seen. Once a backend write fails
// the store is degraded and serves the rest of the session from the fallback.
type Store struct {
	backend Backend
	prefix  string
	strict  bool
	logger  *slog.Logger

	mu       sync.Mutex
	fallback map[string][]byte
	versions map[string]int64
	degraded bool
}

// New wraps backend. A nil backend yields a memory-only store.
func New(backend Backend, opts Options) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &Store{
		backend:  backend,
		prefix:   prefix,
		strict:   opts.Strict,
		logger:   logger,
		fallback: make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// Key returns the backend key for a collection.
func (s *Store) Key(collection string) string {
	return s.prefix + collection
}

// Backend exposes the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Degraded reports whether the store has fallen back to memory.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// load returns the raw collection bytes, or nil when there is nothing stored.
func (s *Store) load(ctx context.Context, collection string) []byte {
	key := s.Key(collection)
	s.mu.Lock()
	if s.degraded {
		data := s.fallback[key]
		s.mu.Unlock()
		return data
	}
	s.mu.Unlock()

	entry, found, err := s.backend.Load(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warn("store read failed, serving fallback", "collection", collection, "err", err)
		s.degradeLocked()
		return s.fallback[key]
	}
	if !found {
		s.versions[key] = 0
		delete(s.fallback, key)
		return nil
	}
	s.versions[key] = entry.Version
	s.fallback[key] = entry.Data
	return entry.Data
}

// save persists data. persisted is false when the backend did not accept the
// write; err is non-nil only for version conflicts.
func (s *Store) save(ctx context.Context, collection string, data []byte) (persisted bool, err error) {
	key := s.Key(collection)
	s.mu.Lock()
	if s.degraded {
		s.fallback[key] = data
		s.mu.Unlock()
		telemetry.StoreWriteFailures.WithLabelValues(collection).Inc()
		return false, nil
	}
	expected := AnyVersion
	if s.strict {
		if v, ok := s.versions[key]; ok {
			expected = v
		}
	}
	s.mu.Unlock()

	version, err := s.backend.Save(ctx, key, data, expected)

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, ErrConcurrentModification) {
		telemetry.StoreConflicts.WithLabelValues(collection).Inc()
		delete(s.versions, key)
		return false, err
	}
	s.fallback[key] = data
	if err != nil {
		s.logger.Error("store write failed, continuing in memory", "collection", collection, "err", err)
		telemetry.StoreWriteFailures.WithLabelValues(collection).Inc()
		s.degradeLocked()
		return false, nil
	}
	s.versions[key] = version
	telemetry.StoreWrites.WithLabelValues(collection).Inc()
	return true, nil
}

func (s *Store) degradeLocked() {
	if !s.degraded {
		s.degraded = true
		telemetry.StoreDegraded.Set(1)
	}
}
