// Package cache provides a write-through LRU in front of a storage.UsageStore.
package cache

import (
	"context"
	"fmt"

	"github.com/goodtune/voicetally/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// UsageStore caches user records by ID. Records are cloned on the way in and
// out so callers can never mutate cached state. Only a single process may
// write through a given cache.
type UsageStore struct {
	inner   storage.UsageStore
	records *lru.Cache[string, storage.UserRecord]
}

// NewUsageStore wraps inner with an LRU holding up to size records.
func NewUsageStore(inner storage.UsageStore, size int) (*UsageStore, error) {
	records, err := lru.New[string, storage.UserRecord](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}
	return &UsageStore{inner: inner, records: records}, nil
}

// Get returns the cached record or loads it from the wrapped store.
func (c *UsageStore) Get(ctx context.Context, userID string) (*storage.UserRecord, error) {
	if record, ok := c.records.Get(userID); ok {
		clone := record.Clone()
		return &clone, nil
	}

	record, err := c.inner.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.records.Add(userID, record.Clone())
	return record, nil
}

// Upsert writes to the wrapped store first and caches only on success.
func (c *UsageStore) Upsert(ctx context.Context, record storage.UserRecord) error {
	if err := c.inner.Upsert(ctx, record); err != nil {
		// The stored state is unknown now
		c.records.Remove(record.UserID)
		return err
	}
	c.records.Add(record.UserID, record.Clone())
	return nil
}

// All always reads through to the wrapped store.
func (c *UsageStore) All(ctx context.Context) ([]storage.UserRecord, error) {
	return c.inner.All(ctx)
}

// Len reports the number of cached records.
func (c *UsageStore) Len() int {
	return c.records.Len()
}

// Store decorates a storage.Store so that Usage() is served through the cache.
type Store struct {
	storage.Store
	usage *UsageStore
}

// Wrap returns s with its usage store cached. A size of zero or less disables caching.
func Wrap(s storage.Store, size int) (storage.Store, error) {
	if size <= 0 {
		return s, nil
	}
	usage, err := NewUsageStore(s.Usage(), size)
	if err != nil {
		return nil, err
	}
	return &Store{Store: s, usage: usage}, nil
}

// Usage returns the cached usage store.
func (s *Store) Usage() storage.UsageStore {
	return s.usage
}
