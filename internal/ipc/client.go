package ipc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bnema/radialmx/internal/display"
)

// Client talks to a running radialmx daemon over its control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// NewClientWithTimeout creates a client with a custom per-call timeout.
func NewClientWithTimeout(socketPath string, timeout time.Duration) *Client {
	c := NewClient(socketPath)
	c.timeout = timeout
	return c
}

// Status queries the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusReply, error) {
	result, err := c.call(ctx, MethodStatus, nil)
	if err != nil {
		return nil, err
	}
	return statusFromMap(result), nil
}

// Active returns the active session or nil.
func (c *Client) Active(ctx context.Context) (*SessionInfo, error) {
	result, err := c.call(ctx, MethodActive, nil)
	if err != nil {
		return nil, err
	}
	if a, ok := result["active"].(map[string]any); ok {
		return sessionFromMap(a), nil
	}
	return nil, nil
}

// Hover reports a pointer position for a session and returns the highlighted slice.
func (c *Client) Hover(ctx context.Context, id uint64, angle, distance float64) (int, error) {
	result, err := c.call(ctx, MethodHover, map[string]any{
		"session_id": id,
		"angle":      angle,
		"distance":   distance,
	})
	if err != nil {
		return 0, err
	}
	return intField(result, "index", -1), nil
}

// Ack acknowledges a session. It reports whether anything changed.
func (c *Client) Ack(ctx context.Context, id uint64) (bool, error) {
	result, err := c.call(ctx, MethodAck, map[string]any{"session_id": id})
	if err != nil {
		return false, err
	}
	return boolField(result, "changed"), nil
}

// ReloadProfiles asks the daemon to re-read its profile store.
func (c *Client) ReloadProfiles(ctx context.Context) error {
	_, err := c.call(ctx, MethodReload, nil)
	return err
}

// Monitors returns the daemon's cached monitor layout.
func (c *Client) Monitors(ctx context.Context) ([]display.Monitor, error) {
	result, err := c.call(ctx, MethodMonitors, nil)
	if err != nil {
		return nil, err
	}
	return monitorsFromMap(result), nil
}

func (c *Client) call(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to radialmx (is the daemon running?): %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	req := NewRequest(method, params)
	msg, err := req.toStruct()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, err
	}

	raw, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	resp := responseFromStruct(raw)
	if resp.ID != req.ID {
		return nil, fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		resp.Result = map[string]any{}
	}
	return resp.Result, nil
}
