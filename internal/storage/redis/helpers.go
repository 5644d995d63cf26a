package redis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/voicetally/internal/storage"
)

const monthFieldPrefix = "month:"

// parseUserRecord converts a Redis hash to UserRecord
func parseUserRecord(data map[string]string) (*storage.UserRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	active, err := strconv.ParseBool(data["active"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse active: %w", err)
	}

	record := storage.NewUserRecord(data["user_id"])
	record.DisplayName = data["display_name"]
	record.Active = active

	if raw := data["session_start"]; raw != "" {
		start, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse session_start: %w", err)
		}
		record.SessionStart = &start
	}

	for field, value := range data {
		month, ok := strings.CutPrefix(field, monthFieldPrefix)
		if !ok {
			continue
		}
		seconds, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", field, err)
		}
		record.MonthlyTotals[month] = seconds
	}

	return &record, nil
}

// userRecordArgs flattens a UserRecord into upsertUserScript arguments
func userRecordArgs(record storage.UserRecord) []interface{} {
	sessionStart := ""
	if record.SessionStart != nil {
		sessionStart = record.SessionStart.Format(time.RFC3339Nano)
	}

	active := "0"
	if record.Active {
		active = "1"
	}

	args := []interface{}{record.UserID, record.DisplayName, sessionStart, active}

	// Stable argument order keeps scripts reproducible in tests
	months := make([]string, 0, len(record.MonthlyTotals))
	for month := range record.MonthlyTotals {
		months = append(months, month)
	}
	sort.Strings(months)

	for _, month := range months {
		args = append(args, month, record.MonthlyTotals[month])
	}

	return args
}
