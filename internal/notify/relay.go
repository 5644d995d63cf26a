package notify

import (
	"context"
	"sync"
	"time"

	"github.com/goodtune/voicetally/internal/metrics"
	"github.com/rs/zerolog"
)

// Relay sends notifications in the background. Failures are logged and
// counted, never returned and never retried.
type Relay struct {
	notifier Notifier
	logger   zerolog.Logger
	wg       sync.WaitGroup
	timeout  time.Duration
}

// NewRelay wraps notifier. Each send is bounded by timeout when it is positive.
func NewRelay(notifier Notifier, timeout time.Duration, logger zerolog.Logger) *Relay {
	return &Relay{
		notifier: notifier,
		timeout:  timeout,
		logger:   logger.With().Str("component", "notify-relay").Logger(),
	}
}

// Send queues text for delivery and returns immediately.
func (r *Relay) Send(text string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx := context.Background()
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		if err := r.notifier.Notify(ctx, text); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			r.logger.Warn().Err(err).Str("text", text).Msg("Notification delivery failed")
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}()
}

// Wait blocks until all queued sends have finished.
func (r *Relay) Wait() {
	r.wg.Wait()
}

// JoinMessage is the text relayed when a user enters the tracked channel.
func JoinMessage(name, channel string) string {
	return name + " joined " + channel
}

// LeaveMessage is the text relayed when a user exits the tracked channel.
func LeaveMessage(name, channel string) string {
	return name + " left " + channel
}

// ReadyMessage is relayed once on startup.
const ReadyMessage = "voicetally is ready"
