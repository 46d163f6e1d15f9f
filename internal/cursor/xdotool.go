package cursor

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Xdotool shells out to `xdotool getmouselocation --shell`; physical pixels.
type Xdotool struct {
	layout LayoutSource
	binary string
}

// NewXdotool uses the xdotool found in PATH.
func NewXdotool(layout LayoutSource) *Xdotool {
	return &Xdotool{layout: layout, binary: "xdotool"}
}

func (x *Xdotool) Name() string { return "xdotool" }

func (x *Xdotool) Resolve(ctx context.Context) (Position, error) {
	path, err := exec.LookPath(x.binary)
	if err != nil {
		return Position{}, ErrUnavailable
	}
	out, err := exec.CommandContext(ctx, path, "getmouselocation", "--shell").Output()
	if err != nil {
		return Position{}, fmt.Errorf("xdotool: %w", err)
	}
	px, py, err := parseXdotoolShell(string(out))
	if err != nil {
		return Position{}, err
	}
	return physicalToLogical(x.layout, px, py)
}

// parseXdotoolShell reads the X= and Y= lines of --shell output.
func parseXdotoolShell(out string) (x, y float64, err error) {
	var haveX, haveY bool
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "X":
			x, err = strconv.ParseFloat(value, 64)
			haveX = err == nil
		case "Y":
			y, err = strconv.ParseFloat(value, 64)
			haveY = err == nil
		}
		if err != nil {
			return 0, 0, fmt.Errorf("xdotool: bad %s value %q", key, value)
		}
	}
	if !haveX || !haveY {
		return 0, 0, fmt.Errorf("xdotool: missing coordinates in %q", out)
	}
	return x, y, nil
}
