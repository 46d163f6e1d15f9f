// Package renderer exposes session signals to menu renderers over a
// websocket and accepts their hover, query and acknowledge requests.
package renderer

import (
	"github.com/bnema/radialmx/internal/action"
	"github.com/bnema/radialmx/internal/session"
)

// Message types on the wire.
const (
	TypeSessionOpened    = "session_opened"
	TypeSliceHighlighted = "slice_highlighted"
	TypeSessionOutcome   = "session_outcome"
	TypeActionResult     = "action_result"

	TypeHover = "hover"
	TypeQuery = "query"
	TypeAck   = "ack"
	TypeReply = "reply"
	TypeError = "error"
	TypeHello = "hello"
)

// Anchor is the menu position in logical pixels.
type Anchor struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Strategy string  `json:"strategy,omitempty"`
}

// Slice is what a renderer draws for one menu slot.
type Slice struct {
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
	Kind  string `json:"kind"`
}

// Session is the active session as reported to renderers.
type Session struct {
	ID          uint64 `json:"session_id"`
	State       string `json:"state"`
	Profile     string `json:"profile"`
	WindowClass string `json:"window_class,omitempty"`
	Anchor      Anchor `json:"anchor"`
	Highlighted int    `json:"highlighted"`
}

// Envelope carries every message in both directions. Only the fields
// relevant to Type are set.
type Envelope struct {
	Type        string   `json:"type"`
	RequestID   string   `json:"request_id,omitempty"`
	SessionID   uint64   `json:"session_id,omitempty"`
	Anchor      *Anchor  `json:"anchor,omitempty"`
	Profile     string   `json:"profile,omitempty"`
	WindowClass string   `json:"window_class,omitempty"`
	Slices      []Slice  `json:"slices,omitempty"`
	Center      *Slice   `json:"center,omitempty"`
	ResolveMs   int64    `json:"resolve_ms,omitempty"`
	Index       *int     `json:"index,omitempty"`
	Outcome     string   `json:"outcome,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	OK          *bool    `json:"ok,omitempty"`
	Error       string   `json:"error,omitempty"`
	Label       string   `json:"label,omitempty"`
	Angle       *float64 `json:"angle,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`
	Changed     *bool    `json:"changed,omitempty"`
	Session     *Session `json:"session,omitempty"`
}

func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

func openedEnvelope(ev session.Opened) Envelope {
	env := Envelope{
		Type:        TypeSessionOpened,
		SessionID:   ev.ID,
		Anchor:      &Anchor{X: ev.Anchor.X, Y: ev.Anchor.Y, Strategy: ev.Anchor.Strategy},
		Profile:     ev.Profile.Name,
		WindowClass: ev.WindowClass,
		ResolveMs:   ev.Resolve.Milliseconds(),
	}
	for _, a := range ev.Profile.Slices {
		env.Slices = append(env.Slices, Slice{Label: a.Label, Icon: a.Icon, Kind: string(a.Kind)})
	}
	if c := ev.Profile.Center; c != nil {
		env.Center = &Slice{Label: c.Label, Icon: c.Icon, Kind: string(c.Kind)}
	}
	return env
}

func outcomeEnvelope(id uint64, o session.Outcome) Envelope {
	env := Envelope{
		Type:      TypeSessionOutcome,
		SessionID: id,
		Outcome:   o.Kind.String(),
		Reason:    o.Reason,
	}
	if o.Kind == session.Fired {
		env.Index = intPtr(o.Slice)
	}
	return env
}

func resultEnvelope(id uint64, r action.Outcome) Envelope {
	env := Envelope{
		Type:      TypeActionResult,
		SessionID: id,
		OK:        boolPtr(r.OK()),
		Label:     r.Label,
	}
	if r.Err != nil {
		env.Error = r.Err.Error()
	}
	return env
}

func sessionFromSummary(s *session.Summary) *Session {
	if s == nil {
		return nil
	}
	return &Session{
		ID:          s.ID,
		State:       s.State.String(),
		Profile:     s.Profile,
		WindowClass: s.WindowClass,
		Anchor:      Anchor{X: s.Anchor.X, Y: s.Anchor.Y, Strategy: s.Anchor.Strategy},
		Highlighted: s.Highlighted,
	}
}
