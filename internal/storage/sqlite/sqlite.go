package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/voicetally/internal/storage"

	_ "modernc.org/sqlite"
)

// Store implements the storage.Store interface on a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := storage.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer keeps each upsert a serialized, atomic statement
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return storage.Unavailable(s.db.PingContext(ctx))
}

// Usage returns the UsageStore implementation.
func (s *Store) Usage() storage.UsageStore { return &usageStore{db: s.db} }

// Reports returns the ReportStateStore implementation.
func (s *Store) Reports() storage.ReportStateStore { return &reportStateStore{db: s.db} }

type usageStore struct {
	db *sql.DB
}

func (s *usageStore) Get(ctx context.Context, userID string) (*storage.UserRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, session_start, active, monthly_totals
		FROM users WHERE user_id = ?
	`, userID)

	record, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	return record, nil
}

func (s *usageStore) Upsert(ctx context.Context, record storage.UserRecord) error {
	totals := record.MonthlyTotals
	if totals == nil {
		totals = map[string]int64{}
	}
	encoded, err := json.Marshal(totals)
	if err != nil {
		return fmt.Errorf("marshal monthly totals: %w", err)
	}

	var sessionStart sql.NullString
	if record.SessionStart != nil {
		sessionStart = sql.NullString{String: record.SessionStart.Format(time.RFC3339Nano), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, display_name, session_start, active, monthly_totals)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			session_start = excluded.session_start,
			active = excluded.active,
			monthly_totals = excluded.monthly_totals
	`, record.UserID, record.DisplayName, sessionStart, record.Active, string(encoded))
	return storage.Unavailable(err)
}

func (s *usageStore) All(ctx context.Context) ([]storage.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, display_name, session_start, active, monthly_totals
		FROM users ORDER BY user_id
	`)
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	defer rows.Close()

	records := make([]storage.UserRecord, 0)
	for rows.Next() {
		record, err := scanUser(rows)
		if err != nil {
			return nil, storage.Unavailable(err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*storage.UserRecord, error) {
	var (
		userID       string
		displayName  string
		sessionStart sql.NullString
		active       bool
		totals       string
	)
	if err := row.Scan(&userID, &displayName, &sessionStart, &active, &totals); err != nil {
		return nil, err
	}

	record := storage.NewUserRecord(userID)
	record.DisplayName = displayName
	record.Active = active

	if sessionStart.Valid && sessionStart.String != "" {
		start, err := time.Parse(time.RFC3339Nano, sessionStart.String)
		if err != nil {
			return nil, fmt.Errorf("parse session_start: %w", err)
		}
		record.SessionStart = &start
	}

	if err := json.Unmarshal([]byte(totals), &record.MonthlyTotals); err != nil {
		return nil, fmt.Errorf("unmarshal monthly totals: %w", err)
	}
	if record.MonthlyTotals == nil {
		record.MonthlyTotals = map[string]int64{}
	}

	return &record, nil
}

type reportStateStore struct {
	db *sql.DB
}

func (s *reportStateStore) Get(ctx context.Context) (*storage.ReportState, error) {
	var date string
	err := s.db.QueryRowContext(ctx, `SELECT last_report_date FROM report_state WHERE id = 1`).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Unavailable(err)
	}
	return &storage.ReportState{LastReportDate: date}, nil
}

func (s *reportStateStore) Put(ctx context.Context, state storage.ReportState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_state (id, last_report_date) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_report_date = excluded.last_report_date
	`, state.LastReportDate)
	return storage.Unavailable(err)
}
