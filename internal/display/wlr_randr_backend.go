package display

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"

	"github.com/bnema/radialmx/internal/logger"
)

// wlrRandrBackend uses wlr-randr for display detection
type wlrRandrBackend struct{}

func newWlrRandrBackend() (Backend, error) {
	if _, err := exec.LookPath("wlr-randr"); err != nil {
		return nil, fmt.Errorf("wlr-randr not found: %w", err)
	}
	return &wlrRandrBackend{}, nil
}

func (w *wlrRandrBackend) Name() string { return "wlr-randr" }

func (w *wlrRandrBackend) Monitors(ctx context.Context) ([]Monitor, error) {
	output, err := exec.CommandContext(ctx, "wlr-randr", "--json").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run wlr-randr: %w", err)
	}
	return parseWlrRandr(output)
}

// parseWlrRandr reads the JSON report. Positions are logical, modes physical.
func parseWlrRandr(output []byte) ([]Monitor, error) {
	var outputs []struct {
		Name     string  `json:"name"`
		Enabled  bool    `json:"enabled"`
		Scale    float64 `json:"scale"`
		Position struct {
			X int `json:"x"`
			Y int `json:"y"`
		} `json:"position"`
		Modes []struct {
			Width   int  `json:"width"`
			Height  int  `json:"height"`
			Current bool `json:"current"`
		} `json:"modes"`
	}
	if err := json.Unmarshal(output, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse wlr-randr output: %w", err)
	}

	var monitors []Monitor
	for i, o := range outputs {
		if !o.Enabled {
			continue
		}
		width, height := 0, 0
		for _, mode := range o.Modes {
			if mode.Current {
				width, height = mode.Width, mode.Height
				break
			}
		}
		if width == 0 || height == 0 {
			logger.Warnf("display: skipping %s without a current mode", o.Name)
			continue
		}
		scale := o.Scale
		if scale <= 0 {
			scale = 1
		}
		monitors = append(monitors, Monitor{
			ID:     fmt.Sprintf("%d", i),
			Name:   o.Name,
			X:      int32(o.Position.X),
			Y:      int32(o.Position.Y),
			Width:  int32(math.Round(float64(width) / scale)),
			Height: int32(math.Round(float64(height) / scale)),
			Scale:  scale,
		})
	}
	return monitors, nil
}
