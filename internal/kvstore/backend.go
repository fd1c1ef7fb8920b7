// Package kvstore persists JSON-encoded record arrays, one per collection,
// over a pluggable key/value backend with an in-memory fallback.
package kvstore

import (
	"context"
	"errors"
)

// AnyVersion disables the compare-and-swap check on Save.
const AnyVersion int64 = -1

var (
	// ErrConcurrentModification is returned when a versioned write finds the
	// stored collection has moved on since it was read.
	ErrConcurrentModification = errors.New("kvstore: concurrent modification")
	// ErrClosed is returned by backends used after Close.
	ErrClosed = errors.New("kvstore: backend closed")
)

// Entry is a stored value and its version. Absent keys have version 0.
type Entry struct {
	Data    []byte
	Version int64
}

// Backend is a string-keyed byte store with optional versioned writes.
//
// Save stores data under key when expected is AnyVersion or equals the
// current version (0 for an absent key) and returns the new version.
// Otherwise it returns ErrConcurrentModification.
type Backend interface {
	Load(ctx context.Context, key string) (Entry, bool, error)
	Save(ctx context.Context, key string, data []byte, expected int64) (int64, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Watcher is implemented by backends that can report changes to a key made by
// other processes. Watch returns once the watch is registered and calls
// onChange from a background goroutine until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, key string, onChange func()) error
}

func checkVersion(current, expected int64) error {
	if expected != AnyVersion && current != expected {
		return ErrConcurrentModification
	}
	return nil
}
