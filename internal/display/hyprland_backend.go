package display

import (
	"context"
	"fmt"
	"math"

	"github.com/bnema/radialmx/internal/hyprland"
)

// hyprlandBackend reads `j/monitors` from the compositor socket.
type hyprlandBackend struct {
	client *hyprland.Client
}

func newHyprlandBackend() (Backend, error) {
	c, err := hyprland.New()
	if err != nil {
		return nil, err
	}
	return &hyprlandBackend{client: c}, nil
}

func (h *hyprlandBackend) Name() string { return "hyprland" }

func (h *hyprlandBackend) Monitors(ctx context.Context) ([]Monitor, error) {
	infos, err := h.client.Monitors(ctx)
	if err != nil {
		return nil, err
	}
	return monitorsFromHyprland(infos), nil
}

// monitorsFromHyprland converts physical mode sizes into logical sizes.
func monitorsFromHyprland(infos []hyprland.MonitorInfo) []Monitor {
	var monitors []Monitor
	for _, hm := range infos {
		if hm.Disabled {
			continue
		}
		scale := hm.Scale
		if scale <= 0 {
			scale = 1
		}
		monitors = append(monitors, Monitor{
			ID:     fmt.Sprintf("%d", hm.ID),
			Name:   hm.Name,
			X:      int32(hm.X),
			Y:      int32(hm.Y),
			Width:  int32(math.Round(float64(hm.Width) / scale)),
			Height: int32(math.Round(float64(hm.Height) / scale)),
			Scale:  scale,
		})
	}
	return monitors
}
