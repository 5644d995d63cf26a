package storage

import (
	"time"
)

// UserRecord is the persisted voice usage state of a single user.
type UserRecord struct {
	UserID        string           `json:"user_id"`
	DisplayName   string           `json:"display_name"`
	SessionStart  *time.Time       `json:"session_start,omitempty"`
	Active        bool             `json:"active"`
	MonthlyTotals map[string]int64 `json:"monthly_totals"`
}

// NewUserRecord returns the initial record for a user that has never been seen.
func NewUserRecord(userID string) UserRecord {
	return UserRecord{
		UserID:        userID,
		MonthlyTotals: map[string]int64{},
	}
}

// Clone returns a deep copy of the record.
func (r UserRecord) Clone() UserRecord {
	out := r
	if r.SessionStart != nil {
		start := *r.SessionStart
		out.SessionStart = &start
	}
	out.MonthlyTotals = make(map[string]int64, len(r.MonthlyTotals))
	for month, seconds := range r.MonthlyTotals {
		out.MonthlyTotals[month] = seconds
	}
	return out
}

// ReportState tracks the last date a scheduled report was dispatched.
type ReportState struct {
	LastReportDate string `json:"last_report_date"` // YYYY-MM-DD
}
