package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrUnavailable is returned when the backing store cannot be reached or
// holds data that cannot be decoded.
var ErrUnavailable = errors.New("storage: unavailable")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Ping(ctx context.Context) error
	Usage() UsageStore
	Reports() ReportStateStore
}

// UsageStore holds one UserRecord per user.
//
// Upsert always replaces the entire record; implementations must write it
// atomically so that a concurrent All never observes a partially written
// record. Serializing read-modify-write cycles for the same user is the
// caller's responsibility.
type UsageStore interface {
	Get(ctx context.Context, userID string) (*UserRecord, error)
	Upsert(ctx context.Context, record UserRecord) error
	All(ctx context.Context) ([]UserRecord, error)
}

// ReportStateStore persists the report scheduler's singleton state.
type ReportStateStore interface {
	Get(ctx context.Context) (*ReportState, error)
	Put(ctx context.Context, state ReportState) error
}

// Unavailable wraps err as ErrUnavailable, leaving ErrNotFound and nil untouched.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
