package hyprland

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHyprland answers each connection with the reply registered for its command.
func fakeHyprland(t *testing.T, replies map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".socket.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				n, err := c.Read(buf)
				if err != nil {
					return
				}
				_, _ = c.Write([]byte(replies[string(buf[:n])]))
			}(conn)
		}
	}()
	return path
}

func TestParseCursorPos(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		x, y    float64
		wantErr bool
	}{
		{"integers", "500, 300", 500, 300, false},
		{"trailing newline", "1920, 12\n", 1920, 12, false},
		{"negative", "-10, 40", -10, 40, false},
		{"garbage", "ok", 0, 0, true},
		{"bad number", "a, 3", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, err := ParseCursorPos(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.x, x)
			assert.Equal(t, tt.y, y)
		})
	}
}

func TestClientRequests(t *testing.T) {
	path := fakeHyprland(t, map[string]string{
		"cursorpos":      "812, 411",
		"j/monitors":     `[{"id":0,"name":"DP-1","width":2560,"height":1440,"x":0,"y":0,"scale":2.0,"focused":true}]`,
		"j/activewindow": `{"class":"firefox","initialClass":"firefox","title":"Mozilla"}`,
	})
	c := NewWithPath(path)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	t.Run("cursorpos", func(t *testing.T) {
		x, y, err := c.CursorPos(ctx)
		require.NoError(t, err)
		assert.Equal(t, 812.0, x)
		assert.Equal(t, 411.0, y)
	})

	t.Run("monitors", func(t *testing.T) {
		monitors, err := c.Monitors(ctx)
		require.NoError(t, err)
		require.Len(t, monitors, 1)
		assert.Equal(t, "DP-1", monitors[0].Name)
		assert.Equal(t, 2.0, monitors[0].Scale)
	})

	t.Run("activewindow", func(t *testing.T) {
		w, err := c.ActiveWindow(ctx)
		require.NoError(t, err)
		assert.Equal(t, "firefox", w.Class)
	})
}

func TestSocketPath(t *testing.T) {
	t.Run("missing signature", func(t *testing.T) {
		t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "")
		_, err := SocketPath()
		assert.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("runtime dir", func(t *testing.T) {
		runtime := t.TempDir()
		t.Setenv("XDG_RUNTIME_DIR", runtime)
		t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "abc")
		sock := fakeHyprlandAt(t, filepath.Join(runtime, "hypr", "abc"))

		got, err := SocketPath()
		require.NoError(t, err)
		assert.Equal(t, sock, got)
	})
}

func fakeHyprlandAt(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, ".socket.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return path
}

