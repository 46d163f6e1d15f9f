package profile

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/godbus/dbus/v5"

	"github.com/bnema/radialmx/internal/cursor"
	"github.com/bnema/radialmx/internal/hyprland"
	"github.com/bnema/radialmx/internal/logger"
)

// ErrNoFocusSource means no way of reading the focused window was found.
var ErrNoFocusSource = errors.New("no focus source available")

// FocusSource reports the class of the focused window, lowercased. An
// empty class means nothing is focused.
type FocusSource interface {
	Name() string
	ActiveClass(ctx context.Context) (string, error)
}

// HyprlandFocus reads j/activewindow.
type HyprlandFocus struct {
	Client *hyprland.Client
}

func (h *HyprlandFocus) Name() string { return "hyprland" }

func (h *HyprlandFocus) ActiveClass(ctx context.Context) (string, error) {
	w, err := h.Client.ActiveWindow(ctx)
	if err != nil {
		return "", err
	}
	class := w.Class
	if class == "" {
		class = w.InitialClass
	}
	return strings.ToLower(class), nil
}

// X11Focus reads _NET_ACTIVE_WINDOW and its WM_CLASS.
type X11Focus struct {
	Conn *cursor.X11Conn
}

func (x *X11Focus) Name() string { return "x11" }

func (x *X11Focus) ActiveClass(ctx context.Context) (string, error) {
	var class string
	err := x.Conn.Do(func(xu *xgbutil.XUtil) error {
		win, err := ewmh.ActiveWindowGet(xu)
		if err != nil {
			return err
		}
		if win == 0 {
			return nil
		}
		wc, err := icccm.WmClassGet(xu, win)
		if err != nil {
			// The window may be gone already.
			return nil
		}
		class = wc.Class
		return nil
	})
	return strings.ToLower(class), err
}

// KWinFocus asks KWin over D-Bus for the active window's resource class.
type KWinFocus struct {
	Conn *dbus.Conn
}

func (k *KWinFocus) Name() string { return "kwin" }

func (k *KWinFocus) ActiveClass(ctx context.Context) (string, error) {
	obj := k.Conn.Object("org.kde.KWin", "/KWin")
	var id string
	if err := obj.CallWithContext(ctx, "org.kde.KWin.activeClient", 0).Store(&id); err != nil {
		return "", err
	}
	if id == "" {
		return "", nil
	}
	var info map[string]dbus.Variant
	if err := obj.CallWithContext(ctx, "org.kde.KWin.getWindowInfo", 0, id).Store(&info); err == nil {
		if v, ok := info["resourceClass"]; ok {
			if s, ok := v.Value().(string); ok {
				return strings.ToLower(s), nil
			}
		}
	}
	return classFromClientID(id), nil
}

// classFromClientID handles ids of the form "appname-<uuid>".
func classFromClientID(id string) string {
	head, _, found := strings.Cut(id, "-")
	if !found || head == "" {
		return ""
	}
	for _, r := range head {
		if !strings.ContainsRune("0123456789abcdefABCDEF{", r) {
			return strings.ToLower(head)
		}
	}
	return ""
}

// NoFocus always reports no focused window.
type NoFocus struct{}

func (NoFocus) Name() string                                    { return "none" }
func (NoFocus) ActiveClass(ctx context.Context) (string, error) { return "", nil }

// FocusDeps carries shared connections for focus sources.
type FocusDeps struct {
	Bus *dbus.Conn
	X11 *cursor.X11Conn
}

// DetectFocus picks a focus source. "auto" probes KWin, Hyprland then X11.
func DetectFocus(ctx context.Context, name string, deps FocusDeps) (FocusSource, error) {
	if deps.X11 == nil {
		deps.X11 = cursor.NewX11Conn()
	}
	candidates := map[string]func() FocusSource{
		"kwin": func() FocusSource {
			if deps.Bus == nil {
				return nil
			}
			return &KWinFocus{Conn: deps.Bus}
		},
		"hyprland": func() FocusSource {
			c, err := hyprland.New()
			if err != nil {
				return nil
			}
			return &HyprlandFocus{Client: c}
		},
		"x11":  func() FocusSource { return &X11Focus{Conn: deps.X11} },
		"none": func() FocusSource { return NoFocus{} },
	}

	if name != "" && name != "auto" {
		mk, ok := candidates[name]
		if !ok {
			return nil, errors.New("unknown focus source " + name)
		}
		if src := mk(); src != nil {
			return src, nil
		}
		return nil, ErrNoFocusSource
	}

	for _, n := range []string{"kwin", "hyprland", "x11"} {
		src := candidates[n]()
		if src == nil {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		_, err := src.ActiveClass(probeCtx)
		cancel()
		if err == nil {
			logger.Infof("profiles: focus source %s", src.Name())
			return src, nil
		}
		logger.Debugf("profiles: focus source %s unavailable: %v", n, err)
	}
	return NoFocus{}, nil
}

// FocusTracker polls a FocusSource and caches the last class so session
// open never waits on it.
type FocusTracker struct {
	source   FocusSource
	interval time.Duration
	class    atomic.Value // string
}

// NewFocusTracker creates a tracker; Run starts polling.
func NewFocusTracker(source FocusSource, interval time.Duration) *FocusTracker {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	t := &FocusTracker{source: source, interval: interval}
	t.class.Store("")
	return t
}

// Class returns the last observed focused window class.
func (t *FocusTracker) Class() string {
	return t.class.Load().(string)
}

// Source names the underlying source.
func (t *FocusTracker) Source() string {
	return t.source.Name()
}

// Refresh polls once.
func (t *FocusTracker) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, t.interval)
	defer cancel()
	class, err := t.source.ActiveClass(ctx)
	if err != nil {
		logger.Debugf("profiles: focus query failed: %v", err)
		return
	}
	if prev := t.Class(); prev != class {
		logger.Debugf("profiles: focus %q -> %q", prev, class)
		t.class.Store(class)
	}
}

// Run polls until ctx is done.
func (t *FocusTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	t.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Refresh(ctx)
		}
	}
}
