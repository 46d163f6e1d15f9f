package display

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
)

// xrandrBackend covers plain X11 sessions, where logical and physical pixels match.
type xrandrBackend struct{}

func newXrandrBackend() (Backend, error) {
	if os.Getenv("DISPLAY") == "" {
		return nil, fmt.Errorf("DISPLAY not set")
	}
	if _, err := exec.LookPath("xrandr"); err != nil {
		return nil, fmt.Errorf("xrandr not found: %w", err)
	}
	return &xrandrBackend{}, nil
}

func (x *xrandrBackend) Name() string { return "xrandr" }

func (x *xrandrBackend) Monitors(ctx context.Context) ([]Monitor, error) {
	output, err := exec.CommandContext(ctx, "xrandr", "--listmonitors").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run xrandr: %w", err)
	}
	return parseXrandrListMonitors(output), nil
}

// " 0: +*DP-1 2560/597x1440/336+0+0  DP-1"
var xrandrMonitorLine = regexp.MustCompile(`^\s*(\d+):\s+\+?(\*?)(\S+)\s+(\d+)/\d+x(\d+)/\d+\+(-?\d+)\+(-?\d+)`)

func parseXrandrListMonitors(output []byte) []Monitor {
	var monitors []Monitor
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		m := xrandrMonitorLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		w, _ := strconv.Atoi(m[4])
		h, _ := strconv.Atoi(m[5])
		px, _ := strconv.Atoi(m[6])
		py, _ := strconv.Atoi(m[7])
		monitors = append(monitors, Monitor{
			ID:      m[1],
			Name:    m[3],
			X:       int32(px),
			Y:       int32(py),
			Width:   int32(w),
			Height:  int32(h),
			Primary: m[2] == "*",
			Scale:   1,
		})
	}
	return monitors
}
