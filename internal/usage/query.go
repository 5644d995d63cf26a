package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/voicetally/internal/storage"
)

// ErrInvalidMonth is returned for month arguments that are not YYYY-MM or YYYYMM.
var ErrInvalidMonth = errors.New("usage: invalid month")

// ParseMonth normalizes a YYYY-MM or YYYYMM month argument to YYYY-MM.
func ParseMonth(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{MonthLayout, "200601"} {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(MonthLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
}

// Query answers per-user usage questions. It never creates records.
type Query struct {
	store storage.UsageStore
}

// NewQuery creates a new usage query service.
func NewQuery(store storage.UsageStore) *Query {
	return &Query{store: store}
}

// TotalFor returns the seconds recorded for userID in month, or 0 for an
// unknown user or month.
func (q *Query) TotalFor(ctx context.Context, userID, month string) (int64, error) {
	month, err := ParseMonth(month)
	if err != nil {
		return 0, err
	}

	totals, err := q.AllTotals(ctx, userID)
	if err != nil {
		return 0, err
	}
	return totals[month], nil
}

// AllTotals returns every month bucket recorded for userID. An unknown user
// yields an empty, non-nil map.
func (q *Query) AllTotals(ctx context.Context, userID string) (map[string]int64, error) {
	record, err := q.store.Get(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, storage.Unavailable(fmt.Errorf("failed to load user record: %w", err))
	}

	totals := make(map[string]int64, len(record.MonthlyTotals))
	for month, seconds := range record.MonthlyTotals {
		totals[month] = seconds
	}
	return totals, nil
}
