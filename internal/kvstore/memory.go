package kvstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps entries in process memory. Two stores sharing one
// MemoryBackend behave like two tabs sharing browser storage.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]Entry
	closed  bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (m *MemoryBackend) Load(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Entry{}, false, ErrClosed
	}
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{Data: append([]byte(nil), e.Data...), Version: e.Version}, true, nil
}

func (m *MemoryBackend) Save(_ context.Context, key string, data []byte, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	cur := m.entries[key].Version
	if err := checkVersion(cur, expected); err != nil {
		return cur, err
	}
	next := cur + 1
	m.entries[key] = Entry{Data: append([]byte(nil), data...), Version: next}
	return next, nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
