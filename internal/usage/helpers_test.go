package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/voicetally/internal/config"
	"github.com/goodtune/voicetally/internal/storage"
	redisstore "github.com/goodtune/voicetally/internal/storage/redis"
)

func setupTestStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := redisstore.Open(config.RedisConfig{
		Host:         mr.Addr(),
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	})
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func seedRecord(t *testing.T, store storage.Store, userID, name string, totals map[string]int64) {
	t.Helper()

	record := storage.NewUserRecord(userID)
	record.DisplayName = name
	for month, seconds := range totals {
		record.MonthlyTotals[month] = seconds
	}
	if err := store.Usage().Upsert(context.Background(), record); err != nil {
		t.Fatalf("Failed to seed %s: %v", userID, err)
	}
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()

	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

// recordingDispatcher collects dispatched texts and optionally fails.
type recordingDispatcher struct {
	mu    sync.Mutex
	texts []string
	err   error
	sent  chan string
}

func (d *recordingDispatcher) Notify(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}
	d.texts = append(d.texts, text)
	if d.sent != nil {
		d.sent <- text
	}
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.texts)
}
