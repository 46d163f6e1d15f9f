package cursor

import (
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/bnema/radialmx/internal/display"
	"github.com/bnema/radialmx/internal/logger"
)

// Deps carries what the built-in strategies need. Any field may be nil; the
// strategies depending on it then report themselves unavailable.
type Deps struct {
	Bus      *dbus.Conn
	Callback *Callback
	// CallbackService, CallbackPath and CallbackInterface name the daemon
	// object a compositor script reports to.
	CallbackService   string
	CallbackPath      dbus.ObjectPath
	CallbackInterface string
	// ShellService and ShellPath locate the GNOME Shell helper.
	ShellService string
	ShellPath    dbus.ObjectPath
	Layout       LayoutSource
	X11          *X11Conn
	SyncPoll     time.Duration
}

// Build instantiates strategies by name in the given order. The static
// fallback is implicit and skipped here; unknown names are logged.
func Build(names []string, deps Deps) []Strategy {
	if deps.X11 == nil {
		deps.X11 = NewX11Conn()
	}
	if deps.Layout == nil {
		deps.Layout = display.NewCache("auto", 0)
	}

	var out []Strategy
	for _, name := range names {
		switch name {
		case "kwin-script":
			out = append(out, NewKWinScript(deps.Bus, deps.Callback, deps.CallbackService, deps.CallbackPath, deps.CallbackInterface))
		case "hyprland-ipc":
			out = append(out, NewHyprlandIPC())
		case "shell-extension":
			out = append(out, NewShellExtension(deps.Bus, deps.ShellService, deps.ShellPath))
		case "x11-query":
			out = append(out, NewX11Query(deps.X11, deps.Layout))
		case "x11-sync":
			out = append(out, NewX11Sync(deps.X11, deps.Layout, deps.SyncPoll))
		case "xdotool":
			out = append(out, NewXdotool(deps.Layout))
		case FallbackName:
			// always last
		default:
			logger.Warnf("cursor: unknown strategy %q ignored", name)
		}
	}
	return out
}
