package cursor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	kwinService    = "org.kde.KWin"
	kwinScripting  = "/Scripting"
	kwinPluginName = "radialmx-cursor"
)

// kwinScriptSource calls back into the daemon with the compositor's own
// logical cursor position.
const kwinScriptSource = `callDBus("%s", "%s", "%s", "ReportCursorPosition", workspace.cursorPos.x, workspace.cursorPos.y);`

// KWinScript loads a one-shot KWin script that reports the cursor through
// the daemon's D-Bus callback method.
type KWinScript struct {
	conn     *dbus.Conn
	callback *Callback
	service  string
	path     dbus.ObjectPath
	iface    string

	once       sync.Once
	scriptPath string
	setupErr   error
}

// NewKWinScript needs the session bus and the callback the daemon exports.
func NewKWinScript(conn *dbus.Conn, callback *Callback, service string, path dbus.ObjectPath, iface string) *KWinScript {
	return &KWinScript{conn: conn, callback: callback, service: service, path: path, iface: iface}
}

func (k *KWinScript) Name() string { return "kwin-script" }

func (k *KWinScript) Resolve(ctx context.Context) (Position, error) {
	if k.conn == nil || k.callback == nil {
		return Position{}, ErrUnavailable
	}
	if !nameHasOwner(ctx, k.conn, kwinService) {
		return Position{}, ErrUnavailable
	}

	k.once.Do(k.writeScript)
	if k.setupErr != nil {
		return Position{}, k.setupErr
	}

	ch := k.callback.register()
	scripting := k.conn.Object(kwinService, kwinScripting)

	// A stale registration from an earlier attempt blocks loadScript.
	_ = scripting.CallWithContext(ctx, "org.kde.kwin.Scripting.unloadScript", 0, kwinPluginName).Err

	var id int32
	if err := scripting.CallWithContext(ctx, "org.kde.kwin.Scripting.loadScript", 0, k.scriptPath, kwinPluginName).Store(&id); err != nil {
		k.callback.unregister(ch)
		return Position{}, fmt.Errorf("kwin loadScript: %w", err)
	}
	defer func() {
		_ = scripting.Call("org.kde.kwin.Scripting.unloadScript", dbus.FlagNoReplyExpected, kwinPluginName).Err
	}()

	script := k.conn.Object(kwinService, dbus.ObjectPath(fmt.Sprintf("/Scripting/Script%d", id)))
	if err := script.CallWithContext(ctx, "org.kde.kwin.Script.run", 0).Err; err != nil {
		k.callback.unregister(ch)
		return Position{}, fmt.Errorf("kwin run script %d: %w", id, err)
	}

	return k.callback.wait(ctx, ch)
}

func (k *KWinScript) writeScript() {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "radialmx-cursor.js")
	src := fmt.Sprintf(kwinScriptSource, k.service, k.path, k.iface)
	if err := os.WriteFile(path, []byte(src), 0600); err != nil {
		k.setupErr = fmt.Errorf("write kwin script: %w", err)
		return
	}
	k.scriptPath = path
}

// nameHasOwner reports whether a bus name is currently owned.
func nameHasOwner(ctx context.Context, conn *dbus.Conn, name string) bool {
	var owned bool
	err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, name).Store(&owned)
	return err == nil && owned
}
