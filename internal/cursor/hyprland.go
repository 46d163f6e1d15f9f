package cursor

import (
	"context"
	"errors"
	"sync"

	"github.com/bnema/radialmx/internal/hyprland"
)

// HyprlandIPC asks the compositor socket for `cursorpos`, which is logical.
type HyprlandIPC struct {
	mu     sync.Mutex
	client *hyprland.Client
}

// NewHyprlandIPC locates the socket lazily so a compositor restart is picked up.
func NewHyprlandIPC() *HyprlandIPC {
	return &HyprlandIPC{}
}

// NewHyprlandIPCWithClient binds the strategy to an explicit client.
func NewHyprlandIPCWithClient(c *hyprland.Client) *HyprlandIPC {
	return &HyprlandIPC{client: c}
}

func (h *HyprlandIPC) Name() string { return "hyprland-ipc" }

func (h *HyprlandIPC) Resolve(ctx context.Context) (Position, error) {
	c, err := h.clientFor()
	if err != nil {
		return Position{}, err
	}
	x, y, err := c.CursorPos(ctx)
	if err != nil {
		return Position{}, err
	}
	return Position{X: x, Y: y, Space: SpaceLogical}, nil
}

func (h *HyprlandIPC) clientFor() (*hyprland.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		return h.client, nil
	}
	c, err := hyprland.New()
	if err != nil {
		if errors.Is(err, hyprland.ErrNotRunning) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	h.client = c
	return c, nil
}
