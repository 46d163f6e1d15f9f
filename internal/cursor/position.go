// Package cursor resolves the pointer position at session open by trying an
// ordered list of platform strategies within a fixed latency budget.
package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/radialmx/internal/display"
)

// Space identifies the coordinate space a strategy reported in.
type Space int

const (
	SpaceUnknown Space = iota
	SpaceLogical
	SpacePhysical
)

func (s Space) String() string {
	switch s {
	case SpaceLogical:
		return "logical"
	case SpacePhysical:
		return "physical"
	default:
		return "unknown"
	}
}

// Position is a pointer coordinate tagged with its space.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Space Space   `json:"-"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%.1f, %.1f %s)", p.X, p.Y, p.Space)
}

var (
	// ErrUnavailable means the mechanism does not exist in this session.
	ErrUnavailable = errors.New("strategy unavailable")
	// ErrOutsideLayout means a physical point matched no monitor.
	ErrOutsideLayout = errors.New("point outside monitor layout")
)

// Strategy is one technique for querying the pointer position. Strategies
// convert their raw output to logical pixels before returning.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context) (Position, error)
}

// LayoutSource provides the current monitor layout. *display.Cache satisfies it.
type LayoutSource interface {
	Layout() *display.Layout
}

// physicalToLogical converts a raw physical-pixel reading using the scale of
// the monitor it falls on.
func physicalToLogical(layout LayoutSource, px, py float64) (Position, error) {
	x, y, ok := layout.Layout().PhysicalToLogical(px, py)
	if !ok {
		return Position{}, fmt.Errorf("%w: (%.0f, %.0f)", ErrOutsideLayout, px, py)
	}
	return Position{X: x, Y: y, Space: SpaceLogical}, nil
}
