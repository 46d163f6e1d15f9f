// Package session drives the menu lifecycle from button press to outcome.
// All state lives in one goroutine fed by a bounded inbox.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/bnema/radialmx/internal/action"
	"github.com/bnema/radialmx/internal/profile"
)

// State of the active session.
type State int

const (
	Idle State = iota
	Armed
	Open
	Selecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Open:
		return "open"
	case Selecting:
		return "selecting"
	default:
		return "unknown"
	}
}

// OutcomeKind is how a session ended.
type OutcomeKind int

const (
	Fired OutcomeKind = iota
	CenterFired
	Cancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case Fired:
		return "fired"
	case CenterFired:
		return "center_fired"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a session. Slice is set for Fired only.
type Outcome struct {
	Kind   OutcomeKind
	Slice  int
	Reason string // why a session was cancelled
}

func (o Outcome) String() string {
	if o.Kind == Fired {
		return fmt.Sprintf("fired(%d)", o.Slice)
	}
	if o.Kind == Cancelled && o.Reason != "" {
		return "cancelled: " + o.Reason
	}
	return o.Kind.String()
}

// Anchor is where the menu opened, in logical pixels.
type Anchor struct {
	X, Y     float64
	Strategy string
}

// Opened is published when a session's menu should appear.
type Opened struct {
	ID          uint64
	Anchor      Anchor
	Profile     profile.Profile
	WindowClass string
	Resolve     time.Duration
}

// Summary describes the active session.
type Summary struct {
	ID          uint64
	State       State
	Profile     string
	WindowClass string
	Anchor      Anchor
	Highlighted int
	StartedAt   time.Time
	OpenedAt    time.Time
}

// Status is the machine-wide view served to status queries.
type Status struct {
	Active   *Summary
	Device   string // ok, degraded, lost, unknown
	Sessions uint64 // sessions started since start
	Last     *Finished
}

// Finished records a session that reached a terminal state.
type Finished struct {
	ID           uint64
	Outcome      Outcome
	EndedAt      time.Time
	Acknowledged bool
}

// Emitter receives outbound signals. Implementations must not block.
type Emitter interface {
	SessionOpened(ev Opened)
	SliceHighlighted(id uint64, index int)
	SessionOutcome(id uint64, o Outcome)
	ActionResult(id uint64, r action.Outcome)
}

// MultiEmitter fans signals out to several emitters.
type MultiEmitter []Emitter

func (m MultiEmitter) SessionOpened(ev Opened) {
	for _, e := range m {
		e.SessionOpened(ev)
	}
}

func (m MultiEmitter) SliceHighlighted(id uint64, index int) {
	for _, e := range m {
		e.SliceHighlighted(id, index)
	}
}

func (m MultiEmitter) SessionOutcome(id uint64, o Outcome) {
	for _, e := range m {
		e.SessionOutcome(id, o)
	}
}

func (m MultiEmitter) ActionResult(id uint64, r action.Outcome) {
	for _, e := range m {
		e.ActionResult(id, r)
	}
}

var (
	// ErrNoSession means no session is active.
	ErrNoSession = errors.New("no active session")
	// ErrStaleSession means the request names a session that is not active.
	ErrStaleSession = errors.New("session is not active")
	// ErrNotOpen means the session has not opened its menu yet.
	ErrNotOpen = errors.New("session menu is not open yet")
	// ErrUnknownSession means the id was never seen or was forgotten.
	ErrUnknownSession = errors.New("unknown session")
	// ErrInvalidHover rejects malformed hover reports.
	ErrInvalidHover = errors.New("invalid hover report")
	// ErrStopped is returned once the machine stopped running.
	ErrStopped = errors.New("session machine stopped")
)
