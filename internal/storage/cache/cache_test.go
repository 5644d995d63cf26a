package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/goodtune/voicetally/internal/storage"
)

type countingStore struct {
	records   map[string]storage.UserRecord
	gets      int
	failWrite error
}

func newCountingStore() *countingStore {
	return &countingStore{records: map[string]storage.UserRecord{}}
}

func (s *countingStore) Get(_ context.Context, userID string) (*storage.UserRecord, error) {
	s.gets++
	record, ok := s.records[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := record.Clone()
	return &clone, nil
}

func (s *countingStore) Upsert(_ context.Context, record storage.UserRecord) error {
	if s.failWrite != nil {
		return s.failWrite
	}
	s.records[record.UserID] = record.Clone()
	return nil
}

func (s *countingStore) All(_ context.Context) ([]storage.UserRecord, error) {
	out := make([]storage.UserRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record.Clone())
	}
	return out, nil
}

func TestUsageStoreCachesReads(t *testing.T) {
	inner := newCountingStore()
	inner.records["user-1"] = storage.NewUserRecord("user-1")

	cached, err := NewUsageStore(inner, 8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cached.Get(ctx, "user-1"); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if inner.gets != 1 {
		t.Fatalf("expected 1 read through, got %d", inner.gets)
	}
}

func TestUsageStoreReturnsCopies(t *testing.T) {
	inner := newCountingStore()
	cached, err := NewUsageStore(inner, 8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	ctx := context.Background()
	record := storage.NewUserRecord("user-1")
	record.MonthlyTotals["2025-02"] = 10
	if err := cached.Upsert(ctx, record); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Mutating the caller's copy must not leak into the cache
	record.MonthlyTotals["2025-02"] = 999

	got, err := cached.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.MonthlyTotals["2025-02"] = 555

	again, err := cached.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.MonthlyTotals["2025-02"] != 10 {
		t.Fatalf("expected cached value 10, got %d", again.MonthlyTotals["2025-02"])
	}
}

func TestUsageStoreFailedWriteEvicts(t *testing.T) {
	inner := newCountingStore()
	inner.records["user-1"] = storage.NewUserRecord("user-1")

	cached, err := NewUsageStore(inner, 8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	ctx := context.Background()
	if _, err := cached.Get(ctx, "user-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	inner.failWrite = storage.ErrUnavailable
	update := storage.NewUserRecord("user-1")
	update.DisplayName = "changed"
	if err := cached.Upsert(ctx, update); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if cached.Len() != 0 {
		t.Fatalf("expected failed write to evict the entry, cache has %d", cached.Len())
	}

	got, err := cached.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DisplayName != "" {
		t.Fatalf("expected stored value, got %q", got.DisplayName)
	}
}

func TestUsageStoreNotFoundIsNotCached(t *testing.T) {
	inner := newCountingStore()
	cached, err := NewUsageStore(inner, 8)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := cached.Get(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if inner.gets != 2 {
		t.Fatalf("expected misses to read through each time, got %d", inner.gets)
	}
}

func TestNewUsageStoreRejectsZeroSize(t *testing.T) {
	if _, err := NewUsageStore(newCountingStore(), 0); err == nil {
		t.Fatal("expected error for zero size")
	}
}
