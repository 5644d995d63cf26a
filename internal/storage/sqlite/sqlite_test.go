package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/voicetally/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "nested", "voicetally.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	return store
}

func TestUsageStoreUpsertAndGet(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	start := time.Date(2025, 1, 31, 23, 50, 0, 0, time.UTC)

	record := storage.UserRecord{
		UserID:        "user-1",
		DisplayName:   "Alice",
		SessionStart:  &start,
		Active:        true,
		MonthlyTotals: map[string]int64{"2025-01": 42},
	}
	if err := store.Usage().Upsert(ctx, record); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.Usage().Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DisplayName != "Alice" || !got.Active {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.SessionStart == nil || !got.SessionStart.Equal(start) {
		t.Fatalf("expected session start %v, got %v", start, got.SessionStart)
	}
	if got.MonthlyTotals["2025-01"] != 42 {
		t.Fatalf("expected 42 seconds, got %v", got.MonthlyTotals)
	}

	// Closing the session replaces the row in place
	closed := got.Clone()
	closed.SessionStart = nil
	closed.Active = false
	closed.MonthlyTotals["2025-02"] = 1200
	if err := store.Usage().Upsert(ctx, closed); err != nil {
		t.Fatalf("upsert closed: %v", err)
	}

	got, err = store.Usage().Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get closed: %v", err)
	}
	if got.Active || got.SessionStart != nil {
		t.Fatalf("expected closed session, got %+v", got)
	}
	if got.MonthlyTotals["2025-02"] != 1200 {
		t.Fatalf("expected 1200 seconds, got %v", got.MonthlyTotals)
	}
}

func TestUsageStoreGetNotFound(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	if _, err := store.Usage().Get(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsageStoreAllOrdered(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for _, id := range []string{"b", "c", "a"} {
		if err := store.Usage().Upsert(ctx, storage.NewUserRecord(id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	records, err := store.Usage().All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"a", "b", "c"} {
		if records[i].UserID != want {
			t.Fatalf("expected %s at %d, got %s", want, i, records[i].UserID)
		}
	}
}

func TestReportStateRoundTrip(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if _, err := store.Reports().Get(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, date := range []string{"2025-02-01", "2025-02-02"} {
		if err := store.Reports().Put(ctx, storage.ReportState{LastReportDate: date}); err != nil {
			t.Fatalf("put %s: %v", date, err)
		}
	}

	state, err := store.Reports().Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.LastReportDate != "2025-02-02" {
		t.Fatalf("expected 2025-02-02, got %s", state.LastReportDate)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicetally.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	record := storage.NewUserRecord("user-1")
	record.MonthlyTotals["2025-02"] = 7
	if err := store.Usage().Upsert(ctx, record); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Reports().Put(ctx, storage.ReportState{LastReportDate: "2025-02-03"}); err != nil {
		t.Fatalf("put state: %v", err)
	}
	_ = store.Close()

	// Migrations must be idempotent across restarts
	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = store.Close() }()

	got, err := store.Usage().Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MonthlyTotals["2025-02"] != 7 {
		t.Fatalf("expected 7 seconds after reopen, got %v", got.MonthlyTotals)
	}
	state, err := store.Reports().Get(ctx)
	if err != nil || state.LastReportDate != "2025-02-03" {
		t.Fatalf("expected persisted report state, got %v, %v", state, err)
	}
}

func TestPing(t *testing.T) {
	store := openTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	_ = store.Close()
	if err := store.Ping(context.Background()); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after close, got %v", err)
	}
}
