package usage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goodtune/voicetally/internal/storage"
	"github.com/rs/zerolog"
)

func TestGenerator_OrdersAndTotals(t *testing.T) {
	store, _ := setupTestStore(t)
	seedRecord(t, store, "u-low", "Bob", map[string]int64{"2025-05": 3600})
	seedRecord(t, store, "u-high", "Alice", map[string]int64{"2025-05": 7200})
	seedRecord(t, store, "u-zero", "Carol", map[string]int64{"2025-05": 0, "2025-04": 500})
	seedRecord(t, store, "u-other", "Dave", map[string]int64{"2025-04": 900})

	gen := NewGenerator(store.Usage(), zerolog.Nop())
	report, err := gen.Generate(context.Background(), "2025-05")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(report.Entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d: %+v", len(report.Entries), report.Entries)
	}
	if report.Entries[0].UserID != "u-high" || report.Entries[1].UserID != "u-low" {
		t.Errorf("Unexpected order: %+v", report.Entries)
	}
	if report.TotalSeconds != 10800 {
		t.Errorf("Expected total 10800, got %d", report.TotalSeconds)
	}

	text := report.Render()
	want := "Voice usage for 2025-05\n1. Alice: 2h 0m 0s\n2. Bob: 1h 0m 0s\nTotal: 3h 0m 0s"
	if text != want {
		t.Errorf("Render() =\n%s\nwant\n%s", text, want)
	}
}

func TestGenerator_TiesBrokenByUserID(t *testing.T) {
	store, _ := setupTestStore(t)
	seedRecord(t, store, "b", "Second", map[string]int64{"2025-05": 60})
	seedRecord(t, store, "a", "First", map[string]int64{"2025-05": 60})
	seedRecord(t, store, "c", "", map[string]int64{"2025-05": 60})

	gen := NewGenerator(store.Usage(), zerolog.Nop())
	report, err := gen.Generate(context.Background(), "2025-05")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var order []string
	for _, e := range report.Entries {
		order = append(order, e.UserID)
	}
	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("Expected a,b,c, got %v", order)
	}
	if report.Entries[2].DisplayName != "c" {
		t.Errorf("Expected user id fallback for empty display name, got %q", report.Entries[2].DisplayName)
	}
}

func TestGenerator_OpenSessionsDoNotCount(t *testing.T) {
	store, _ := setupTestStore(t)

	record := storage.NewUserRecord("u1")
	start := mustTime(t, "2025-05-01T10:00:00Z")
	record.SessionStart = &start
	record.Active = true
	if err := store.Usage().Upsert(context.Background(), record); err != nil {
		t.Fatalf("seed: %v", err)
	}

	gen := NewGenerator(store.Usage(), zerolog.Nop())
	report, err := gen.Generate(context.Background(), "2025-05")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !report.Empty() {
		t.Errorf("Expected empty report, got %+v", report.Entries)
	}
}

func TestGenerator_EmptySentinel(t *testing.T) {
	store, _ := setupTestStore(t)

	gen := NewGenerator(store.Usage(), zerolog.Nop())
	report, err := gen.Generate(context.Background(), "202505")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if report.Month != "2025-05" {
		t.Errorf("Expected normalized month, got %s", report.Month)
	}
	if report.Entries == nil {
		t.Error("Expected non-nil entries slice")
	}
	if !strings.HasSuffix(report.Render(), NoUsageMessage) {
		t.Errorf("Expected sentinel, got %q", report.Render())
	}
}

func TestGenerator_Errors(t *testing.T) {
	store, mr := setupTestStore(t)
	gen := NewGenerator(store.Usage(), zerolog.Nop())

	if _, err := gen.Generate(context.Background(), "May"); !errors.Is(err, ErrInvalidMonth) {
		t.Errorf("Expected ErrInvalidMonth, got %v", err)
	}

	mr.Close()
	if _, err := gen.Generate(context.Background(), "2025-05"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestGenerator_CorruptRecordIsUnavailable(t *testing.T) {
	store, mr := setupTestStore(t)
	seedRecord(t, store, "u1", "Alice", map[string]int64{"2025-05": 3600})
	seedRecord(t, store, "u2", "Bob", map[string]int64{"2025-05": 7200})

	mr.HSet("voicetally:user:u2", "active", "maybe")

	gen := NewGenerator(store.Usage(), zerolog.Nop())
	report, err := gen.Generate(context.Background(), "2025-05")
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v (report %+v)", err, report)
	}
}
