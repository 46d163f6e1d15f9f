package display

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bnema/radialmx/internal/logger"
)

// ErrNoBackend is returned when every backend failed to describe the outputs.
var ErrNoBackend = errors.New("no display backend available")

// Backend describes the current monitor arrangement.
type Backend interface {
	Name() string
	Monitors(ctx context.Context) ([]Monitor, error)
}

type backendFactory struct {
	name string
	new  func() (Backend, error)
}

// factories are tried in order; compositor-native sources report scale correctly.
var factories = []backendFactory{
	{"hyprland", newHyprlandBackend},
	{"sway", newSwayBackend},
	{"wlr-randr", newWlrRandrBackend},
	{"xrandr", newXrandrBackend},
}

// BackendNames lists the known backends in detection order.
func BackendNames() []string {
	names := make([]string, len(factories))
	for i, f := range factories {
		names[i] = f.name
	}
	return names
}

// Detect queries backends in order and returns the first usable layout.
// A non-empty preferred name restricts detection to that backend.
func Detect(ctx context.Context, preferred string) (*Layout, error) {
	preferred = strings.ToLower(strings.TrimSpace(preferred))

	var errs []error
	for _, f := range factories {
		if preferred != "" && preferred != "auto" && preferred != f.name {
			continue
		}
		if os.Getenv("RADIALMX_DISPLAY_QUIET") != "1" {
			logger.Debugf("display: trying backend %s", f.name)
		}

		backend, err := f.new()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		monitors, err := backend.Monitors(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		if len(monitors) == 0 {
			errs = append(errs, fmt.Errorf("%s: no active monitors", f.name))
			continue
		}
		logger.Debugf("display: %s reported %d monitor(s)", f.name, len(monitors))
		return NewLayout(f.name, monitors), nil
	}

	return nil, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}
