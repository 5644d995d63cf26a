package usage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goodtune/voicetally/internal/storage"
	"github.com/rs/zerolog"
)

// NoUsageMessage replaces the leaderboard when nobody has usage in the month.
const NoUsageMessage = "no usage this month"

// Entry is one user's line in a report.
type Entry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Seconds     int64  `json:"seconds"`
}

// Report is a leaderboard of closed-session time for one month.
type Report struct {
	Month        string  `json:"month"`
	Entries      []Entry `json:"entries"`
	TotalSeconds int64   `json:"total_seconds"`
}

// Empty reports whether no user had usage in the month.
func (r *Report) Empty() bool {
	return len(r.Entries) == 0
}

// Render formats the report as plain text for chat delivery.
func (r *Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Voice usage for %s\n", r.Month)

	if r.Empty() {
		b.WriteString(NoUsageMessage)
		return b.String()
	}

	for i, e := range r.Entries {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, e.DisplayName, FormatDuration(e.Seconds))
	}
	fmt.Fprintf(&b, "Total: %s", FormatDuration(r.TotalSeconds))
	return b.String()
}

// Generator builds monthly reports from every stored user record.
type Generator struct {
	store  storage.UsageStore
	logger zerolog.Logger
}

// NewGenerator creates a new report generator.
func NewGenerator(store storage.UsageStore, logger zerolog.Logger) *Generator {
	return &Generator{
		store:  store,
		logger: logger.With().Str("component", "report-generator").Logger(),
	}
}

// Generate builds the report for month. Only closed-session time counts;
// users with nothing recorded for the month are left out. Entries are sorted
// by seconds descending, then user ID ascending.
func (g *Generator) Generate(ctx context.Context, month string) (*Report, error) {
	month, err := ParseMonth(month)
	if err != nil {
		return nil, err
	}

	records, err := g.store.All(ctx)
	if err != nil {
		return nil, storage.Unavailable(fmt.Errorf("failed to list user records: %w", err))
	}

	report := &Report{Month: month, Entries: []Entry{}}
	for _, record := range records {
		seconds := record.MonthlyTotals[month]
		if seconds <= 0 {
			continue
		}

		name := record.DisplayName
		if name == "" {
			name = record.UserID
		}

		report.Entries = append(report.Entries, Entry{
			UserID:      record.UserID,
			DisplayName: name,
			Seconds:     seconds,
		})
		report.TotalSeconds += seconds
	}

	sort.Slice(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.Seconds != b.Seconds {
			return a.Seconds > b.Seconds
		}
		return a.UserID < b.UserID
	})

	g.logger.Debug().
		Str("month", month).
		Int("users", len(report.Entries)).
		Int64("total_seconds", report.TotalSeconds).
		Msg("Report generated")

	return report, nil
}
