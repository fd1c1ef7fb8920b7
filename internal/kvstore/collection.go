package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"staffing-board/internal/telemetry"
)

// Record is anything stored in a collection; ids are unique per collection.
type Record interface {
	RecordID() string
}

// Collection is a typed view over one JSON array in a Store.
// Compound operations (Append, UpsertByID, RemoveByID) read then write the
// whole array and assume a single writer.
type Collection[T Record] struct {
	store *Store
	name  string
}

// NewCollection binds a collection name to a store.
func NewCollection[T Record](s *Store, name string) *Collection[T] {
	return &Collection[T]{store: s, name: name}
}

// Name returns the logical collection name.
func (c *Collection[T]) Name() string { return c.name }

// GetAll never fails: missing, unreadable or malformed data yields an empty slice.
func (c *Collection[T]) GetAll(ctx context.Context) []T {
	data := c.store.load(ctx, c.name)
	if len(data) == 0 {
		return []T{}
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		c.store.logger.Warn("discarding malformed collection", "collection", c.name, "err", err)
		telemetry.StoreDecodeFailures.WithLabelValues(c.name).Inc()
		return []T{}
	}
	if out == nil {
		out = []T{}
	}
	return out
}

// Exists reports whether anything is stored under the collection, even an
// empty array.
func (c *Collection[T]) Exists(ctx context.Context) bool {
	return c.store.load(ctx, c.name) != nil
}

// Find returns the record with the given id.
func (c *Collection[T]) Find(ctx context.Context, id string) (T, bool) {
	for _, item := range c.GetAll(ctx) {
		if item.RecordID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// SetAll persists items and reports whether the backend accepted the write.
// A failed write leaves the backend untouched; the fallback copy is updated.
func (c *Collection[T]) SetAll(ctx context.Context, items []T) bool {
	persisted, err := c.put(ctx, items)
	return persisted && err == nil
}

// Put is SetAll for callers that need to see version conflicts and encode
// failures. A write that only reached the fallback returns nil.
func (c *Collection[T]) Put(ctx context.Context, items []T) error {
	_, err := c.put(ctx, items)
	return err
}

func (c *Collection[T]) put(ctx context.Context, items []T) (bool, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		c.store.logger.Error("encode collection", "collection", c.name, "err", err)
		return false, fmt.Errorf("encode %s: %w", c.name, err)
	}
	return c.store.save(ctx, c.name, data)
}

// Append adds item at the end of the collection.
func (c *Collection[T]) Append(ctx context.Context, item T) bool {
	items := c.GetAll(ctx)
	return c.SetAll(ctx, append(items, item))
}

// UpsertByID replaces the record with item's id in place, or appends it.
func (c *Collection[T]) UpsertByID(ctx context.Context, item T) bool {
	items := c.GetAll(ctx)
	replaced := false
	for i := range items {
		if items[i].RecordID() == item.RecordID() {
			items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, item)
	}
	return c.SetAll(ctx, items)
}

// RemoveByID drops every record with the given id.
func (c *Collection[T]) RemoveByID(ctx context.Context, id string) bool {
	items := c.GetAll(ctx)
	kept := items[:0]
	for _, item := range items {
		if item.RecordID() != id {
			kept = append(kept, item)
		}
	}
	return c.SetAll(ctx, kept)
}
