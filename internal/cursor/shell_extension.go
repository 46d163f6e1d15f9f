package cursor

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Default bus coordinates of the juhradial-cursor GNOME Shell extension.
// The interface shares the service name.
const (
	ShellHelperService = "org.juhradial.CursorHelper"
	ShellHelperPath    = "/org/juhradial/CursorHelper"
)

// ShellExtension queries a GNOME Shell extension that exposes
// global.get_pointer() over D-Bus. Shell coordinates are logical.
type ShellExtension struct {
	conn    *dbus.Conn
	service string
	path    dbus.ObjectPath
}

// NewShellExtension binds to the helper owning service at path. Empty
// values select the defaults.
func NewShellExtension(conn *dbus.Conn, service string, path dbus.ObjectPath) *ShellExtension {
	if service == "" {
		service = ShellHelperService
	}
	if path == "" {
		path = ShellHelperPath
	}
	return &ShellExtension{conn: conn, service: service, path: path}
}

func (s *ShellExtension) Name() string { return "shell-extension" }

func (s *ShellExtension) Resolve(ctx context.Context) (Position, error) {
	if s.conn == nil {
		return Position{}, ErrUnavailable
	}
	if !nameHasOwner(ctx, s.conn, s.service) {
		return Position{}, ErrUnavailable
	}

	var x, y int32
	err := s.conn.Object(s.service, s.path).
		CallWithContext(ctx, s.service+".GetCursorPosition", 0).
		Store(&x, &y)
	if err != nil {
		return Position{}, fmt.Errorf("shell helper: %w", err)
	}
	return Position{X: float64(x), Y: float64(y), Space: SpaceLogical}, nil
}
