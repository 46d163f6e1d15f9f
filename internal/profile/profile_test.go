package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfiles = `
schema_version = 1

[[profiles]]
name = "browser"
window_class = "Firefox"
icon = "firefox"

  [[profiles.slices]]
  type = "shortcut"
  label = "New Tab"
  keys = "ctrl+t"

  [[profiles.slices]]
  type = "command"
  label = "Files"
  command = "nautilus --new-window '~/Downloads'"

  [[profiles.slices]]
  type = "remote"
  label = "Screenshot"
  args = ["area", 1]
    [profiles.slices.endpoint]
    service = "org.gnome.Shell.Screenshot"
    path = "/org/gnome/Shell/Screenshot"
    interface = "org.gnome.Shell.Screenshot"
    method = "Screenshot"

  [[profiles.slices]]
  type = "shortcut"
  keys = "ctrl+"

  [profiles.center]
  type = "shortcut"
  label = "Reload"
  keys = "f5"
`

func TestDecode(t *testing.T) {
	profiles, issues, err := Decode([]byte(sampleProfiles))
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	p := profiles[0]
	assert.Equal(t, "browser", p.Name)
	assert.Equal(t, "firefox", p.WindowClass)
	assert.Equal(t, KindShortcut, p.Slices[0].Kind)
	assert.Equal(t, "ctrl+t", p.Slices[0].Keys)

	argv, err := p.Slices[1].CommandArgv()
	require.NoError(t, err)
	assert.Equal(t, []string{"nautilus", "--new-window", "~/Downloads"}, argv)

	require.NotNil(t, p.Slices[2].Endpoint)
	assert.Equal(t, "org.gnome.Shell.Screenshot.Screenshot", p.Slices[2].Endpoint.Member())
	assert.Equal(t, []any{"area", int64(1)}, p.Slices[2].Args)

	assert.True(t, p.Slices[3].IsNone(), "invalid shortcut replaced")
	for i := 4; i < SliceCount; i++ {
		assert.True(t, p.Slices[i].IsNone(), "slice %d padded", i)
	}
	require.NotNil(t, p.Center)
	assert.Equal(t, "f5", p.Center.Keys)

	var problems []string
	for _, is := range issues {
		problems = append(problems, is.String())
	}
	assert.Contains(t, problems, `profile "browser": has 4 slices, using 8`)
	assert.Len(t, issues, 2)
}

func TestDecodeEdgeCases(t *testing.T) {
	t.Run("syntax error", func(t *testing.T) {
		_, _, err := Decode([]byte("[[profiles]\nname ="))
		assert.Error(t, err)
	})

	t.Run("too many slices truncated", func(t *testing.T) {
		src := "schema_version = 1\n[[profiles]]\nname = \"x\"\n"
		for i := 0; i < 10; i++ {
			src += "[[profiles.slices]]\ntype = \"none\"\n"
		}
		profiles, issues, err := Decode([]byte(src))
		require.NoError(t, err)
		require.Len(t, profiles, 1)
		require.Len(t, issues, 1)
		assert.Contains(t, issues[0].Problem, "10 slices")
	})

	t.Run("schema mismatch and nameless", func(t *testing.T) {
		profiles, issues, err := Decode([]byte("schema_version = 7\n[[profiles]]\nicon = \"x\"\n"))
		require.NoError(t, err)
		assert.Empty(t, profiles)
		assert.Len(t, issues, 2)
	})

	t.Run("unknown type", func(t *testing.T) {
		profiles, issues, err := Decode([]byte("schema_version = 1\n[[profiles]]\nname = \"a\"\n[[profiles.slices]]\ntype = \"teleport\"\n"))
		require.NoError(t, err)
		assert.True(t, profiles[0].Slices[0].IsNone())
		assert.Contains(t, issues[len(issues)-1].Problem, "unknown action type")
	})
}

func TestTableAndResolver(t *testing.T) {
	profiles, _, err := Decode([]byte(sampleProfiles))
	require.NoError(t, err)

	r := NewResolver()
	assert.Equal(t, DefaultName, r.Resolve("firefox").Name, "builtin before load")

	r.Swap(NewTable(profiles))
	assert.Equal(t, "browser", r.Resolve("firefox").Name)
	assert.Equal(t, "browser", r.Resolve("FireFox").Name)
	assert.Equal(t, DefaultName, r.Resolve("kitty").Name)
	assert.Equal(t, DefaultName, r.Resolve("").Name)
	assert.Equal(t, "Copy", r.Resolve("kitty").Slices[0].Label)

	tbl := r.Table()
	assert.Equal(t, []string{"firefox"}, tbl.Classes())
	assert.Len(t, tbl.Profiles(), 2)

	custom := Builtin()
	custom.Slices[0] = Shortcut("Find", "ctrl+f")
	r.Swap(NewTable([]Profile{custom}))
	assert.Equal(t, "Find", r.Resolve("anything").Slices[0].Label)
}

func TestResolverReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.toml")

	tbl, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, "Copy", tbl.Default().Slices[0].Label)
	_, err = os.Stat(path)
	require.NoError(t, err, "default file written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Builtin().Slices, loaded.Default().Slices)

	r := NewResolver()
	require.NoError(t, os.WriteFile(path, []byte(sampleProfiles), 0o600))
	require.NoError(t, r.Reload(path))
	assert.Equal(t, "browser", r.Resolve("firefox").Name)

	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o600))
	assert.Error(t, r.Reload(path))
	assert.Equal(t, "browser", r.Resolve("firefox").Name, "last good table kept")
	assert.Len(t, r.reported, 1)

	assert.Error(t, r.Reload(path))
	assert.Len(t, r.reported, 1, "same error reported once")
}

func TestValidIcon(t *testing.T) {
	valid := []string{"edit-copy", "firefox", "icons", "copy.svg", "/usr/share/icons/a.png", "🎯", "input_mouse"}
	for _, icon := range valid {
		assert.True(t, ValidIcon(icon), icon)
	}
	invalid := []string{"", "../../etc/passwd", "rm -rf", "a/b"}
	for _, icon := range invalid {
		assert.False(t, ValidIcon(icon), icon)
	}
}

func TestSliceActionValidate(t *testing.T) {
	assert.NoError(t, None().Validate())
	assert.NoError(t, Shortcut("x", "ctrl+shift+z").Validate())
	assert.Error(t, Shortcut("x", "").Validate())
	assert.NoError(t, Command("x", "echo hi").Validate())
	assert.Error(t, Command("x", "echo 'unterminated").Validate())
	assert.Error(t, Command("x", "   ").Validate())
	assert.NoError(t, RemoteCall("x", Endpoint{Service: "a.b", Path: "/a", Method: "M"}).Validate())
	assert.Error(t, RemoteCall("x", Endpoint{Service: "a.b", Path: "a", Method: "M"}).Validate())
	assert.Error(t, SliceAction{Kind: KindRemoteCall}.Validate())
	assert.Equal(t, None(), Builtin().Slice(9))
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.toml")
	require.NoError(t, Save(path, []Profile{Builtin()}))

	r := NewResolver()
	reloaded := make(chan error, 4)
	w := &Watcher{Path: path, Resolver: r, Debounce: 20 * time.Millisecond, OnReload: func(err error) { reloaded <- err }}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(sampleProfiles), 0o600))
	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after write")
	}
	assert.Equal(t, "browser", r.Resolve("firefox").Name)
}

type fakeFocus struct {
	class atomic.Value
	err   error
}

func (f *fakeFocus) Name() string { return "fake" }

func (f *fakeFocus) ActiveClass(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.class.Load().(string), nil
}

func TestFocusTracker(t *testing.T) {
	src := &fakeFocus{}
	src.class.Store("kitty")
	tr := NewFocusTracker(src, 5*time.Millisecond)
	assert.Equal(t, "", tr.Class())

	tr.Refresh(context.Background())
	assert.Equal(t, "kitty", tr.Class())

	src.err = errors.New("gone")
	tr.Refresh(context.Background())
	assert.Equal(t, "kitty", tr.Class(), "errors keep the last class")
	src.err = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()
	src.class.Store("firefox")
	assert.Eventually(t, func() bool { return tr.Class() == "firefox" }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestClassFromClientID(t *testing.T) {
	assert.Equal(t, "dolphin", classFromClientID("Dolphin-1234"))
	assert.Equal(t, "", classFromClientID("{0a1b2c3d-aaaa-bbbb}"))
	assert.Equal(t, "", classFromClientID("plain"))
}

func TestNoFocus(t *testing.T) {
	src, err := DetectFocus(context.Background(), "none", FocusDeps{})
	require.NoError(t, err)
	class, err := src.ActiveClass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, class)

	_, err = DetectFocus(context.Background(), "wayfire", FocusDeps{})
	assert.Error(t, err)
}
