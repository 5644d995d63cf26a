package usage

import (
	"errors"
	"time"
)

// ErrInvalidTransition is returned for transitions missing a user or kind.
var ErrInvalidTransition = errors.New("usage: invalid transition")

// EventKind is the direction of a voice channel transition.
type EventKind int

const (
	// Join means the user entered the tracked channel.
	Join EventKind = iota + 1
	// Leave means the user exited the tracked channel.
	Leave
)

func (k EventKind) String() string {
	switch k {
	case Join:
		return "join"
	case Leave:
		return "leave"
	default:
		return "unknown"
	}
}

// Transition is a single join or leave observed for the tracked channel.
type Transition struct {
	At          time.Time
	UserID      string
	DisplayName string
	Kind        EventKind
}

// Outcome describes what a transition did to the user's session.
type Outcome int

const (
	// OutcomeOpened means a new session was started.
	OutcomeOpened Outcome = iota + 1
	// OutcomeReopened means a join arrived while a session was open and replaced its start time.
	OutcomeReopened
	// OutcomeClosed means an open session was closed and its duration recorded.
	OutcomeClosed
	// OutcomeIgnored means a leave arrived without an open session.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOpened:
		return "opened"
	case OutcomeReopened:
		return "reopened"
	case OutcomeClosed:
		return "closed"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "error"
	}
}

// Result reports the effect of a transition. Month and Seconds are set only
// when a session was closed.
type Result struct {
	Month   string
	Seconds int64
	Outcome Outcome
}
