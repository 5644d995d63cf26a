package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/voicetally/internal/metrics"
	"github.com/goodtune/voicetally/internal/storage"
	"github.com/rs/zerolog"
)

// Tracker turns join and leave transitions into closed sessions and folds
// their durations into monthly totals.
type Tracker struct {
	store  storage.UsageStore
	loc    *time.Location
	locks  keyedMutex
	logger zerolog.Logger
}

// NewTracker creates a new session tracker. Month buckets are computed in loc.
func NewTracker(store storage.UsageStore, loc *time.Location, logger zerolog.Logger) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{
		store:  store,
		loc:    loc,
		logger: logger.With().Str("component", "session-tracker").Logger(),
	}
}

// OnTransition applies a single transition to the user's record. The whole
// read-modify-write cycle runs under the user's lock and ends in exactly one
// record write. Store failures are returned wrapped in storage.ErrUnavailable
// and the transition is dropped.
func (t *Tracker) OnTransition(ctx context.Context, tr Transition) (Result, error) {
	if tr.UserID == "" {
		return Result{}, fmt.Errorf("%w: missing user id", ErrInvalidTransition)
	}
	if tr.Kind != Join && tr.Kind != Leave {
		return Result{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidTransition, tr.Kind)
	}

	unlock := t.locks.Lock(tr.UserID)
	defer unlock()

	record, err := t.store.Get(ctx, tr.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fresh := storage.NewUserRecord(tr.UserID)
		record = &fresh
	case err != nil:
		metrics.StoreErrorsTotal.WithLabelValues("get").Inc()
		metrics.TransitionsTotal.WithLabelValues(tr.Kind.String(), "error").Inc()
		t.logger.Error().Err(err).Str("user_id", tr.UserID).Str("kind", tr.Kind.String()).Msg("Failed to load user record, dropping transition")
		return Result{}, storage.Unavailable(fmt.Errorf("failed to load user record: %w", err))
	}

	// An empty name keeps the stored one
	if tr.DisplayName != "" {
		record.DisplayName = tr.DisplayName
	}

	var result Result
	if tr.Kind == Join {
		result = t.open(record, tr)
	} else {
		result = t.close(record, tr)
	}

	if err := t.store.Upsert(ctx, *record); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("upsert").Inc()
		metrics.TransitionsTotal.WithLabelValues(tr.Kind.String(), "error").Inc()
		t.logger.Error().Err(err).Str("user_id", tr.UserID).Str("kind", tr.Kind.String()).Msg("Failed to save user record, dropping transition")
		return Result{}, storage.Unavailable(fmt.Errorf("failed to save user record: %w", err))
	}

	metrics.TransitionsTotal.WithLabelValues(tr.Kind.String(), result.Outcome.String()).Inc()
	if result.Outcome == OutcomeClosed {
		metrics.SessionSecondsTotal.Add(float64(result.Seconds))
	}

	return result, nil
}

func (t *Tracker) open(record *storage.UserRecord, tr Transition) Result {
	outcome := OutcomeOpened
	if record.Active && record.SessionStart != nil {
		outcome = OutcomeReopened
		t.logger.Warn().
			Str("user_id", tr.UserID).
			Time("previous_start", *record.SessionStart).
			Time("new_start", tr.At).
			Msg("Join while session already open, replacing session start")
	}

	start := tr.At
	record.SessionStart = &start
	record.Active = true

	t.logger.Debug().Str("user_id", tr.UserID).Time("session_start", start).Msg("Session opened")
	return Result{Outcome: outcome}
}

func (t *Tracker) close(record *storage.UserRecord, tr Transition) Result {
	if !record.Active || record.SessionStart == nil {
		t.logger.Warn().Str("user_id", tr.UserID).Time("at", tr.At).Msg("Leave without an open session, ignoring")
		// Keep the record consistent even if only one of the two fields was set
		record.Active = false
		record.SessionStart = nil
		return Result{Outcome: OutcomeIgnored}
	}

	delta := int64(tr.At.Sub(*record.SessionStart) / time.Second)
	if delta < 0 {
		metrics.NegativeDurationsTotal.Inc()
		t.logger.Warn().
			Str("user_id", tr.UserID).
			Time("session_start", *record.SessionStart).
			Time("at", tr.At).
			Int64("seconds", delta).
			Msg("Negative session duration, clamping to zero")
		delta = 0
	}

	month := MonthKey(tr.At, t.loc)
	record.MonthlyTotals = AddToMonth(record.MonthlyTotals, month, delta)
	record.SessionStart = nil
	record.Active = false

	t.logger.Info().
		Str("user_id", tr.UserID).
		Str("month", month).
		Int64("seconds", delta).
		Int64("month_total", record.MonthlyTotals[month]).
		Msg("Session closed")

	return Result{Outcome: OutcomeClosed, Month: month, Seconds: delta}
}

// keyedMutex hands out one mutex per key. Entries are never removed; the key
// space is the set of users ever seen.
type keyedMutex struct {
	locks sync.Map
}

func (k *keyedMutex) Lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
