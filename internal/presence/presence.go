// Package presence turns raw voice-state updates into tracker transitions.
package presence

import (
	"context"
	"time"

	"github.com/goodtune/voicetally/internal/notify"
	"github.com/goodtune/voicetally/internal/usage"
	"github.com/rs/zerolog"
)

// VoiceStateUpdate is a user's move between voice channels. An empty channel
// means the user was not in any channel.
type VoiceStateUpdate struct {
	Timestamp       time.Time `json:"timestamp"`
	UserID          string    `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	PreviousChannel string    `json:"previous_channel"`
	NewChannel      string    `json:"new_channel"`
}

// Sender queues a notification for asynchronous delivery.
type Sender interface {
	Send(text string)
}

// Tracker is the subset of usage.Tracker the handler needs.
type Tracker interface {
	OnTransition(ctx context.Context, tr usage.Transition) (usage.Result, error)
}

// Config holds presence handler configuration
type Config struct {
	ChannelID   string
	ChannelName string
}

// Handler feeds updates for the tracked channel into the tracker and relays
// join and leave notices.
type Handler struct {
	tracker Tracker
	sender  Sender
	clock   usage.Clock
	logger  zerolog.Logger
	config  Config
}

// NewHandler creates a new presence handler. A nil sender disables relaying.
func NewHandler(tracker Tracker, sender Sender, clock usage.Clock, cfg Config, logger zerolog.Logger) *Handler {
	if clock == nil {
		clock = usage.RealClock{}
	}
	if cfg.ChannelName == "" {
		cfg.ChannelName = cfg.ChannelID
	}
	return &Handler{
		tracker: tracker,
		sender:  sender,
		clock:   clock,
		logger:  logger.With().Str("component", "presence").Logger(),
		config:  cfg,
	}
}

// Classify derives the transition kind for an update relative to the
// tracked channel. It returns false when the update does not cross the
// channel boundary.
func (h *Handler) Classify(update VoiceStateUpdate) (usage.EventKind, bool) {
	tracked := h.config.ChannelID
	switch {
	case update.PreviousChannel == update.NewChannel:
		return 0, false
	case update.NewChannel == tracked:
		return usage.Join, true
	case update.PreviousChannel == tracked:
		return usage.Leave, true
	default:
		return 0, false
	}
}

// Handle applies update. Updates that do not touch the tracked channel are
// ignored and reported as handled=false. The notification is queued after
// the tracker call returns, whatever its outcome.
func (h *Handler) Handle(ctx context.Context, update VoiceStateUpdate) (handled bool, result usage.Result, err error) {
	kind, ok := h.Classify(update)
	if !ok {
		h.logger.Debug().
			Str("user_id", update.UserID).
			Str("previous_channel", update.PreviousChannel).
			Str("new_channel", update.NewChannel).
			Msg("Ignoring update outside tracked channel")
		return false, usage.Result{}, nil
	}

	at := update.Timestamp
	if at.IsZero() {
		at = h.clock.Now()
	}

	result, err = h.tracker.OnTransition(ctx, usage.Transition{
		UserID:      update.UserID,
		DisplayName: update.DisplayName,
		Kind:        kind,
		At:          at,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", update.UserID).Str("kind", kind.String()).Msg("Failed to record transition")
	}

	if h.sender != nil {
		name := update.DisplayName
		if name == "" {
			name = update.UserID
		}
		if kind == usage.Join {
			h.sender.Send(notify.JoinMessage(name, h.config.ChannelName))
		} else {
			h.sender.Send(notify.LeaveMessage(name, h.config.ChannelName))
		}
	}

	return true, result, err
}
