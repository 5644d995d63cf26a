package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/voicetally/internal/metrics"
	"github.com/goodtune/voicetally/internal/storage"
	"github.com/rs/zerolog"
)

// DateLayout is the layout of ReportState.LastReportDate.
const DateLayout = "2006-01-02"

// Dispatcher delivers rendered report text.
type Dispatcher interface {
	Notify(ctx context.Context, text string) error
}

// SchedulerConfig holds report scheduler configuration
type SchedulerConfig struct {
	Location       *time.Location
	Clock          Clock
	CatchUpOnStart bool
}

// ReportScheduler dispatches the current month's report once per local
// calendar day, at midnight.
type ReportScheduler struct {
	generator  *Generator
	state      storage.ReportStateStore
	dispatcher Dispatcher
	clock      Clock
	loc        *time.Location
	after      func(time.Duration) <-chan time.Time
	logger     zerolog.Logger
	stopChan   chan struct{}
	done       chan struct{}
	mu         sync.Mutex
	stopOnce   sync.Once
	started    atomic.Bool
	catchUp    bool
}

// NewReportScheduler creates a new report scheduler
func NewReportScheduler(generator *Generator, state storage.ReportStateStore, dispatcher Dispatcher, cfg SchedulerConfig, logger zerolog.Logger) *ReportScheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}

	return &ReportScheduler{
		generator:  generator,
		state:      state,
		dispatcher: dispatcher,
		clock:      cfg.Clock,
		loc:        cfg.Location,
		after:      time.After,
		logger:     logger.With().Str("component", "report-scheduler").Logger(),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
		catchUp:    cfg.CatchUpOnStart,
	}
}

// Start begins the scheduler loop. It returns immediately.
func (s *ReportScheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run(ctx)
	s.logger.Info().
		Str("timezone", s.loc.String()).
		Bool("catch_up_on_start", s.catchUp).
		Msg("Daily report scheduler started")
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *ReportScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	if s.started.Load() {
		<-s.done
	}
	s.logger.Info().Msg("Daily report scheduler stopped")
}

// run is the main scheduler loop
func (s *ReportScheduler) run(ctx context.Context) {
	defer close(s.done)

	if s.catchUp {
		s.fire(ctx)
	}

	for {
		// Recompute from the wall clock every time so restarts and clock
		// changes land on the right boundary
		now := s.clock.Now()
		next := nextBoundary(now, s.loc)
		wait := next.Sub(now)

		s.logger.Debug().
			Time("next_report", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next daily report")

		select {
		case <-s.after(wait):
			s.fire(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *ReportScheduler) fire(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Daily report failed")
	}
}

// RunOnce dispatches today's report unless it already went out. It reports
// whether a dispatch happened. The persisted date is only advanced after a
// successful dispatch, so a failure can be retried the same day.
func (s *ReportScheduler) RunOnce(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().In(s.loc)
	today := now.Format(DateLayout)

	state, err := s.state.Get(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return false, storage.Unavailable(fmt.Errorf("failed to load report state: %w", err))
	}
	if state != nil && state.LastReportDate == today {
		metrics.ReportsTotal.WithLabelValues("skipped").Inc()
		s.logger.Debug().Str("date", today).Msg("Report already dispatched today")
		return false, nil
	}

	report, err := s.generator.Generate(ctx, MonthKey(now, s.loc))
	if err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to generate report: %w", err)
	}

	if err := s.dispatcher.Notify(ctx, report.Render()); err != nil {
		metrics.ReportsTotal.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("failed to dispatch report: %w", err)
	}

	if err := s.state.Put(ctx, storage.ReportState{LastReportDate: today}); err != nil {
		// A second run today will send the report again
		metrics.ReportsTotal.WithLabelValues("unsaved").Inc()
		s.logger.Error().
			Err(err).
			Str("date", today).
			Str("month", report.Month).
			Msg("Report dispatched but state not saved, another run today will send it again")
		return true, storage.Unavailable(fmt.Errorf("failed to save report state: %w", err))
	}

	metrics.ReportsTotal.WithLabelValues("dispatched").Inc()
	s.logger.Info().
		Str("date", today).
		Str("month", report.Month).
		Int("users", len(report.Entries)).
		Msg("Daily report dispatched")

	return true, nil
}

// nextBoundary returns the first local midnight strictly after now.
func nextBoundary(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}
