// Package command answers chat commands about recorded voice usage.
package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goodtune/voicetally/internal/usage"
	"github.com/rs/zerolog"
)

const (
	reportCommand      = "!report"
	leaderboardCommand = "!leaderboard"

	// ReportUsage is the reply to a malformed !report.
	ReportUsage = "usage: !report [YYYYMM|YYYY-MM]"
	// LeaderboardUsage is the reply to a malformed !leaderboard.
	LeaderboardUsage = "usage: !leaderboard [YYYYMM|YYYY-MM]"
	// NoRecordsMessage is the reply to !report when the caller has no usage
	// at all, or none in the requested month.
	NoRecordsMessage = "no usage recorded"
)

// Invocation is a chat message that may carry a command.
type Invocation struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
}

// Handler dispatches !report and !leaderboard.
type Handler struct {
	query     *usage.Query
	generator *usage.Generator
	clock     usage.Clock
	loc       *time.Location
	logger    zerolog.Logger
}

// NewHandler creates a new command handler. The current month is taken from
// clock in loc.
func NewHandler(query *usage.Query, generator *usage.Generator, clock usage.Clock, loc *time.Location, logger zerolog.Logger) *Handler {
	if clock == nil {
		clock = usage.RealClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		query:     query,
		generator: generator,
		clock:     clock,
		loc:       loc,
		logger:    logger.With().Str("component", "command").Logger(),
	}
}

// Handle returns the reply for inv. handled is false for text that is not a
// known command. Malformed arguments produce a usage reply, not an error.
func (h *Handler) Handle(ctx context.Context, inv Invocation) (reply string, handled bool, err error) {
	fields := strings.Fields(inv.Text)
	if len(fields) == 0 {
		return "", false, nil
	}

	switch strings.ToLower(fields[0]) {
	case reportCommand:
		reply, err = h.report(ctx, inv, fields[1:])
	case leaderboardCommand:
		reply, err = h.leaderboard(ctx, fields[1:])
	default:
		return "", false, nil
	}

	if err != nil {
		h.logger.Error().Err(err).Str("user_id", inv.UserID).Str("command", fields[0]).Msg("Command failed")
		return "", true, err
	}
	return reply, true, nil
}

func (h *Handler) report(ctx context.Context, inv Invocation, args []string) (string, error) {
	if len(args) > 1 {
		return ReportUsage, nil
	}

	if len(args) == 1 {
		month, err := usage.ParseMonth(args[0])
		if err != nil {
			return ReportUsage, nil
		}
		total, err := h.query.TotalFor(ctx, inv.UserID, month)
		if err != nil {
			return "", err
		}
		if total == 0 {
			return NoRecordsMessage, nil
		}
		return hoursTable(map[string]int64{month: total}), nil
	}

	totals, err := h.query.AllTotals(ctx, inv.UserID)
	if err != nil {
		return "", err
	}
	if len(totals) == 0 {
		return NoRecordsMessage, nil
	}
	return hoursTable(totals), nil
}

func (h *Handler) leaderboard(ctx context.Context, args []string) (string, error) {
	if len(args) > 1 {
		return LeaderboardUsage, nil
	}

	month := usage.MonthKey(h.clock.Now(), h.loc)
	if len(args) == 1 {
		parsed, err := usage.ParseMonth(args[0])
		if err != nil {
			return LeaderboardUsage, nil
		}
		month = parsed
	}

	report, err := h.generator.Generate(ctx, month)
	if err != nil {
		return "", err
	}
	return report.Render(), nil
}

// hoursTable renders month totals as a markdown table of hours, oldest first.
func hoursTable(totals map[string]int64) string {
	months := make([]string, 0, len(totals))
	for month := range totals {
		months = append(months, month)
	}
	sort.Strings(months)

	var b strings.Builder
	b.WriteString("| Month | Hours |\n|---|---|\n")
	for _, month := range months {
		fmt.Fprintf(&b, "| %s | %s |\n", month, usage.FormatHours(totals[month]))
	}
	return b.String()
}
