package cursor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
)

// X11Conn is a lazily opened X connection shared by the X11 strategies.
// A failed request drops the connection so the next attempt reconnects.
type X11Conn struct {
	mu sync.Mutex
	xu *xgbutil.XUtil
}

// NewX11Conn does not connect until first use.
func NewX11Conn() *X11Conn {
	return &X11Conn{}
}

func (c *X11Conn) get() (*xgbutil.XUtil, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.xu != nil {
		return c.xu, nil
	}
	if os.Getenv("DISPLAY") == "" {
		return nil, ErrUnavailable
	}
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.xu = xu
	return xu, nil
}

func (c *X11Conn) reset(xu *xgbutil.XUtil) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.xu == xu && xu != nil {
		xu.Conn().Close()
		c.xu = nil
	}
}

// Close releases the connection.
func (c *X11Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.xu != nil {
		c.xu.Conn().Close()
		c.xu = nil
	}
}

func queryPointer(xu *xgbutil.XUtil) (x, y int16, err error) {
	reply, err := xproto.QueryPointer(xu.Conn(), xu.RootWin()).Reply()
	if err != nil {
		return 0, 0, err
	}
	if !reply.SameScreen {
		return 0, 0, fmt.Errorf("pointer on another screen")
	}
	return reply.RootX, reply.RootY, nil
}

// X11Query reads the root window pointer. Under XWayland the value is in
// physical pixels and can be stale for secondary monitors.
type X11Query struct {
	conn   *X11Conn
	layout LayoutSource
}

// NewX11Query converts through layout.
func NewX11Query(conn *X11Conn, layout LayoutSource) *X11Query {
	return &X11Query{conn: conn, layout: layout}
}

func (q *X11Query) Name() string { return "x11-query" }

func (q *X11Query) Resolve(ctx context.Context) (Position, error) {
	xu, err := q.conn.get()
	if err != nil {
		return Position{}, err
	}
	x, y, err := queryPointer(xu)
	if err != nil {
		q.conn.reset(xu)
		return Position{}, fmt.Errorf("query pointer: %w", err)
	}
	return physicalToLogical(q.layout, float64(x), float64(y))
}

// X11Sync maps a transparent override-redirect window over the root so the
// X server receives a fresh pointer enter, then polls until the reported
// position changes or settles.
type X11Sync struct {
	conn   *X11Conn
	layout LayoutSource
	poll   time.Duration
	settle time.Duration
}

// NewX11Sync polls every poll interval, accepting an unchanged value after settle.
func NewX11Sync(conn *X11Conn, layout LayoutSource, poll time.Duration) *X11Sync {
	if poll <= 0 {
		poll = 4 * time.Millisecond
	}
	return &X11Sync{conn: conn, layout: layout, poll: poll, settle: 3 * poll}
}

func (s *X11Sync) Name() string { return "x11-sync" }

func (s *X11Sync) Resolve(ctx context.Context) (Position, error) {
	xu, err := s.conn.get()
	if err != nil {
		return Position{}, err
	}

	initialX, initialY, err := queryPointer(xu)
	if err != nil {
		s.conn.reset(xu)
		return Position{}, fmt.Errorf("query pointer: %w", err)
	}

	wid, err := s.mapSyncWindow(xu)
	if err != nil {
		return Position{}, err
	}
	defer xproto.DestroyWindow(xu.Conn(), wid)

	x, y := initialX, initialY
	settleAt := time.Now().Add(s.settle)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Position{}, ctx.Err()
		case <-ticker.C:
		}

		x, y, err = queryPointer(xu)
		if err != nil {
			s.conn.reset(xu)
			return Position{}, fmt.Errorf("query pointer: %w", err)
		}
		if x != initialX || y != initialY || time.Now().After(settleAt) {
			return physicalToLogical(s.layout, float64(x), float64(y))
		}
	}
}

func (s *X11Sync) mapSyncWindow(xu *xgbutil.XUtil) (xproto.Window, error) {
	c := xu.Conn()
	wid, err := xproto.NewWindowId(c)
	if err != nil {
		return 0, fmt.Errorf("allocate window id: %w", err)
	}
	screen := xu.Screen()
	err = xproto.CreateWindowChecked(c, 0, wid, xu.RootWin(),
		0, 0, screen.WidthInPixels, screen.HeightInPixels, 0,
		xproto.WindowClassInputOnly, 0,
		xproto.CwOverrideRedirect, []uint32{1}).Check()
	if err != nil {
		return 0, fmt.Errorf("create sync window: %w", err)
	}
	if err := xproto.MapWindowChecked(c, wid).Check(); err != nil {
		xproto.DestroyWindow(c, wid)
		return 0, fmt.Errorf("map sync window: %w", err)
	}
	return wid, nil
}

// Do runs fn on the shared connection, dropping the connection when fn
// fails.
func (c *X11Conn) Do(fn func(xu *xgbutil.XUtil) error) error {
	xu, err := c.get()
	if err != nil {
		return err
	}
	if err := fn(xu); err != nil {
		c.reset(xu)
		return err
	}
	return nil
}
