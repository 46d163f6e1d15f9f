// Package hyprland talks to the Hyprland compositor over its request socket.
package hyprland

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNotRunning is returned when no Hyprland instance signature is present.
var ErrNotRunning = errors.New("hyprland: no instance signature in environment")

// Client issues one request per connection, which is how hyprctl works.
type Client struct {
	path string
}

// MonitorInfo is the subset of `j/monitors` the daemon needs.
// Width and Height are the physical mode; X and Y are logical.
type MonitorInfo struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Scale    float64 `json:"scale"`
	Focused  bool    `json:"focused"`
	Disabled bool    `json:"disabled"`
}

// WindowInfo is the subset of `j/activewindow`.
type WindowInfo struct {
	Class        string `json:"class"`
	InitialClass string `json:"initialClass"`
	Title        string `json:"title"`
}

// SocketPath locates the request socket of the running instance.
func SocketPath() (string, error) {
	sig := strings.TrimSpace(os.Getenv("HYPRLAND_INSTANCE_SIGNATURE"))
	if sig == "" {
		return "", ErrNotRunning
	}

	var candidates []string
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		candidates = append(candidates, filepath.Join(runtime, "hypr", sig, ".socket.sock"))
	}
	// Hyprland before 0.40 kept sockets under /tmp.
	candidates = append(candidates, filepath.Join("/tmp", "hypr", sig, ".socket.sock"))

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("hyprland: socket for instance %s not found", sig)
}

// New returns a client for the instance found in the environment.
func New() (*Client, error) {
	path, err := SocketPath()
	if err != nil {
		return nil, err
	}
	return &Client{path: path}, nil
}

// NewWithPath returns a client bound to an explicit socket path.
func NewWithPath(path string) *Client {
	return &Client{path: path}
}

// Path returns the socket path.
func (c *Client) Path() string {
	return c.path
}

// Request sends a raw command and returns the full reply.
func (c *Client) Request(ctx context.Context, command string) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("hyprland: dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(time.Second))
	}

	if _, err := conn.Write([]byte(command)); err != nil {
		return nil, fmt.Errorf("hyprland: write %q: %w", command, err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("hyprland: read %q: %w", command, err)
	}
	return reply, nil
}

// CursorPos returns the pointer position in logical layout coordinates.
func (c *Client) CursorPos(ctx context.Context) (x, y float64, err error) {
	reply, err := c.Request(ctx, "cursorpos")
	if err != nil {
		return 0, 0, err
	}
	return ParseCursorPos(string(reply))
}

// Monitors returns the active monitors.
func (c *Client) Monitors(ctx context.Context) ([]MonitorInfo, error) {
	reply, err := c.Request(ctx, "j/monitors")
	if err != nil {
		return nil, err
	}
	var monitors []MonitorInfo
	if err := json.Unmarshal(reply, &monitors); err != nil {
		return nil, fmt.Errorf("hyprland: parse monitors: %w", err)
	}
	return monitors, nil
}

// ActiveWindow returns the focused window, with an empty class when nothing has focus.
func (c *Client) ActiveWindow(ctx context.Context) (WindowInfo, error) {
	reply, err := c.Request(ctx, "j/activewindow")
	if err != nil {
		return WindowInfo{}, err
	}
	var w WindowInfo
	trimmed := strings.TrimSpace(string(reply))
	if trimmed == "" || trimmed == "{}" {
		return w, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return WindowInfo{}, fmt.Errorf("hyprland: parse activewindow: %w", err)
	}
	return w, nil
}

// ParseCursorPos parses the "x, y" reply of the cursorpos command.
func ParseCursorPos(reply string) (x, y float64, err error) {
	parts := strings.Split(strings.TrimSpace(reply), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("hyprland: unexpected cursorpos reply %q", reply)
	}
	x, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("hyprland: cursorpos x: %w", err)
	}
	y, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("hyprland: cursorpos y: %w", err)
	}
	return x, y, nil
}
