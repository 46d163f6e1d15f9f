// Package display handles monitor layout detection and coordinate conversion
package display

import (
	"fmt"
)

// Monitor is one output in the logical (scaled) layout.
// X, Y, Width and Height are logical pixels.
type Monitor struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	X       int32   `json:"x"`
	Y       int32   `json:"y"`
	Width   int32   `json:"width"`
	Height  int32   `json:"height"`
	Primary bool    `json:"primary"`
	Scale   float64 `json:"scale"`
}

// Bounds returns the monitor's logical boundaries
func (m Monitor) Bounds() (x1, y1, x2, y2 int32) {
	return m.X, m.Y, m.X + m.Width, m.Y + m.Height
}

// Contains checks if a logical point is within this monitor
func (m Monitor) Contains(x, y float64) bool {
	return x >= float64(m.X) && x < float64(m.X+m.Width) &&
		y >= float64(m.Y) && y < float64(m.Y+m.Height)
}

// ScaleFactor returns the scale, treating unset values as 1.
func (m Monitor) ScaleFactor() float64 {
	if m.Scale <= 0 {
		return 1
	}
	return m.Scale
}

// PhysicalBounds returns the rectangle this monitor occupies in the
// unscaled space reported by legacy X11 clients.
func (m Monitor) PhysicalBounds() (x1, y1, x2, y2 float64) {
	s := m.ScaleFactor()
	x1 = float64(m.X) * s
	y1 = float64(m.Y) * s
	return x1, y1, x1 + float64(m.Width)*s, y1 + float64(m.Height)*s
}

// ContainsPhysical checks if a physical-pixel point falls on this monitor.
func (m Monitor) ContainsPhysical(px, py float64) bool {
	x1, y1, x2, y2 := m.PhysicalBounds()
	return px >= x1 && px < x2 && py >= y1 && py < y2
}

// Center returns the logical center of the monitor.
func (m Monitor) Center() (x, y float64) {
	return float64(m.X) + float64(m.Width)/2, float64(m.Y) + float64(m.Height)/2
}

func (m Monitor) String() string {
	return fmt.Sprintf("%s %dx%d+%d+%d@%.2f", m.Name, m.Width, m.Height, m.X, m.Y, m.ScaleFactor())
}

// Layout is an immutable snapshot of the monitor arrangement.
type Layout struct {
	Monitors []Monitor `json:"monitors"`
	Source   string    `json:"source"`
}

// DefaultLayout is used when no backend can describe the outputs.
func DefaultLayout() *Layout {
	return &Layout{
		Monitors: []Monitor{{
			ID:      "0",
			Name:    "default",
			Width:   1920,
			Height:  1080,
			Primary: true,
			Scale:   1,
		}},
		Source: "default",
	}
}

// NewLayout copies monitors into a layout with exactly one primary monitor.
func NewLayout(source string, monitors []Monitor) *Layout {
	l := &Layout{Source: source, Monitors: make([]Monitor, len(monitors))}
	copy(l.Monitors, monitors)
	determinePrimaryMonitor(l.Monitors)
	return l
}

// Primary returns the primary monitor
func (l *Layout) Primary() Monitor {
	for _, m := range l.Monitors {
		if m.Primary {
			return m
		}
	}
	// Fallback to first monitor
	if len(l.Monitors) > 0 {
		return l.Monitors[0]
	}
	return DefaultLayout().Monitors[0]
}

// PrimaryCenter returns the logical center of the primary monitor.
func (l *Layout) PrimaryCenter() (x, y float64) {
	return l.Primary().Center()
}

// MonitorAt returns the monitor containing the given logical coordinates
func (l *Layout) MonitorAt(x, y float64) (Monitor, bool) {
	for _, m := range l.Monitors {
		if m.Contains(x, y) {
			return m, true
		}
	}
	return Monitor{}, false
}

// PhysicalToLogical converts a point reported in physical pixels into the
// logical layout, using the scale of the monitor the point falls on.
func (l *Layout) PhysicalToLogical(px, py float64) (x, y float64, ok bool) {
	for _, m := range l.Monitors {
		if !m.ContainsPhysical(px, py) {
			continue
		}
		s := m.ScaleFactor()
		ox, oy, _, _ := m.PhysicalBounds()
		return float64(m.X) + (px-ox)/s, float64(m.Y) + (py-oy)/s, true
	}
	return 0, 0, false
}

// determinePrimaryMonitor keeps the first monitor flagged primary. When none
// is flagged, the monitor at (0,0) wins, then the first monitor.
func determinePrimaryMonitor(monitors []Monitor) {
	primary := -1
	for i, m := range monitors {
		if m.Primary {
			primary = i
			break
		}
	}
	if primary < 0 {
		for i, m := range monitors {
			if m.X == 0 && m.Y == 0 {
				primary = i
				break
			}
		}
	}
	if primary < 0 && len(monitors) > 0 {
		primary = 0
	}
	for i := range monitors {
		monitors[i].Primary = i == primary
	}
}
