package display

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
)

// swayBackend uses `swaymsg -t get_outputs -r`. Sway reports rects in
// logical pixels already.
type swayBackend struct{}

func newSwayBackend() (Backend, error) {
	if os.Getenv("SWAYSOCK") == "" {
		return nil, fmt.Errorf("SWAYSOCK not set")
	}
	if _, err := exec.LookPath("swaymsg"); err != nil {
		return nil, fmt.Errorf("swaymsg not found: %w", err)
	}
	return &swayBackend{}, nil
}

func (s *swayBackend) Name() string { return "sway" }

func (s *swayBackend) Monitors(ctx context.Context) ([]Monitor, error) {
	output, err := exec.CommandContext(ctx, "swaymsg", "-t", "get_outputs", "-r").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run swaymsg: %w", err)
	}
	return parseSwayOutputs(output)
}

func parseSwayOutputs(output []byte) ([]Monitor, error) {
	var outputs []struct {
		Name    string  `json:"name"`
		Active  bool    `json:"active"`
		Primary bool    `json:"primary"`
		Scale   float64 `json:"scale"`
		Rect    struct {
			X      int `json:"x"`
			Y      int `json:"y"`
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"rect"`
	}
	if err := json.Unmarshal(output, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse swaymsg output: %w", err)
	}

	var monitors []Monitor
	for i, o := range outputs {
		if !o.Active {
			continue
		}
		monitors = append(monitors, Monitor{
			ID:      fmt.Sprintf("%d", i),
			Name:    o.Name,
			X:       int32(o.Rect.X),
			Y:       int32(o.Rect.Y),
			Width:   int32(o.Rect.Width),
			Height:  int32(o.Rect.Height),
			Scale:   o.Scale,
			Primary: o.Primary,
		})
	}
	return monitors, nil
}
