// Package device watches the trigger button and reports debounced
// press/release transitions, device loss and degraded mode.
package device

import (
	"context"
	"errors"
	"time"
)

// EventKind classifies listener output.
type EventKind int

const (
	Pressed EventKind = iota
	Released
	// Lost means an open device failed mid-read; any open session must abort.
	Lost
	// Degraded means no device could be opened; discovery keeps retrying.
	Degraded
	// Recovered follows Degraded once a device opens again.
	Recovered
)

func (k EventKind) String() string {
	switch k {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	case Lost:
		return "lost"
	case Degraded:
		return "degraded"
	case Recovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// Event is one listener output.
type Event struct {
	Kind   EventKind
	Time   time.Time
	Device string
	Err    error
}

// IsButton reports whether the event is a press or release.
func (e Event) IsButton() bool {
	return e.Kind == Pressed || e.Kind == Released
}

// RawButton is an undebounced trigger transition read from a device.
type RawButton struct {
	Pressed bool
	Time    time.Time
}

// ErrNoDevice is returned by sources that found nothing to open.
var ErrNoDevice = errors.New("no matching input device")

// Source discovers and opens the device carrying the trigger signal.
type Source interface {
	Name() string
	Open(ctx context.Context) (Reader, error)
}

// Reader yields trigger transitions. Read blocks; Close unblocks it.
type Reader interface {
	Read() (RawButton, error)
	Close() error
	Describe() string
}
