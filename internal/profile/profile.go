// Package profile maps the focused application to a radial menu layout.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/bnema/radialmx/internal/keys"
)

// SliceCount is the number of slices around the menu, clockwise from north.
const SliceCount = 8

// DefaultName is the profile used when no window class matches.
const DefaultName = "default"

// ActionKind tags a SliceAction.
type ActionKind string

const (
	KindNone       ActionKind = "none"
	KindShortcut   ActionKind = "shortcut"
	KindCommand    ActionKind = "command"
	KindRemoteCall ActionKind = "remote"
)

// Endpoint addresses a D-Bus method.
type Endpoint struct {
	Service   string `toml:"service" json:"service"`
	Path      string `toml:"path" json:"path"`
	Interface string `toml:"interface" json:"interface"`
	Method    string `toml:"method" json:"method"`
}

// Member is the fully qualified method name.
func (e Endpoint) Member() string {
	if e.Interface == "" {
		return e.Method
	}
	return e.Interface + "." + e.Method
}

// SliceAction is what a slice does when selected. Only the fields of its
// Kind are meaningful.
type SliceAction struct {
	Kind     ActionKind `toml:"type" json:"type"`
	Label    string     `toml:"label,omitempty" json:"label,omitempty"`
	Icon     string     `toml:"icon,omitempty" json:"icon,omitempty"`
	Keys     string     `toml:"keys,omitempty" json:"keys,omitempty"`
	Command  string     `toml:"command,omitempty" json:"command,omitempty"`
	Argv     []string   `toml:"argv,omitempty" json:"argv,omitempty"`
	Endpoint *Endpoint  `toml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Args     []any      `toml:"args,omitempty" json:"args,omitempty"`
}

// None is the empty slice.
func None() SliceAction {
	return SliceAction{Kind: KindNone}
}

// Shortcut builds a key chord action such as "ctrl+shift+z".
func Shortcut(label, chord string) SliceAction {
	return SliceAction{Kind: KindShortcut, Label: label, Keys: chord}
}

// Command builds a subprocess action from a shell-style command line.
func Command(label, line string) SliceAction {
	return SliceAction{Kind: KindCommand, Label: label, Command: line}
}

// RemoteCall builds a D-Bus method call action.
func RemoteCall(label string, ep Endpoint, args ...any) SliceAction {
	return SliceAction{Kind: KindRemoteCall, Label: label, Endpoint: &ep, Args: args}
}

// IsNone reports whether selecting the action does nothing.
func (a SliceAction) IsNone() bool {
	return a.Kind == KindNone || a.Kind == ""
}

// CommandArgv returns the argv of a command action, splitting Command with
// shell quoting rules when Argv is not set.
func (a SliceAction) CommandArgv() ([]string, error) {
	if len(a.Argv) > 0 {
		return a.Argv, nil
	}
	argv, err := shellquote.Split(a.Command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", a.Command, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	return argv, nil
}

// Validate checks the fields required by the action's kind.
func (a SliceAction) Validate() error {
	switch a.Kind {
	case KindNone, "":
		return nil
	case KindShortcut:
		_, err := keys.ParseShortcut(a.Keys)
		return err
	case KindCommand:
		_, err := a.CommandArgv()
		return err
	case KindRemoteCall:
		if a.Endpoint == nil {
			return errors.New("remote call without endpoint")
		}
		if a.Endpoint.Service == "" || a.Endpoint.Path == "" || a.Endpoint.Method == "" {
			return fmt.Errorf("remote call %q needs service, path and method", a.Endpoint.Member())
		}
		if !strings.HasPrefix(a.Endpoint.Path, "/") {
			return fmt.Errorf("invalid object path %q", a.Endpoint.Path)
		}
		return nil
	default:
		return fmt.Errorf("unknown action type %q", a.Kind)
	}
}

// Profile is an immutable menu layout. Session code receives copies.
type Profile struct {
	Name        string
	WindowClass string
	Icon        string
	Description string
	Slices      [SliceCount]SliceAction
	Center      *SliceAction
}

// Slice returns the action at index i, or None when out of range.
func (p Profile) Slice(i int) SliceAction {
	if i < 0 || i >= SliceCount {
		return None()
	}
	return p.Slices[i]
}

// Labels lists the slice labels in order, for renderers.
func (p Profile) Labels() []string {
	out := make([]string, SliceCount)
	for i, s := range p.Slices {
		out[i] = s.Label
	}
	return out
}

// Builtin is the hardcoded profile used when nothing else is available.
func Builtin() Profile {
	return Profile{
		Name:        DefaultName,
		Icon:        "input-mouse",
		Description: "Default profile with common shortcuts",
		Slices: [SliceCount]SliceAction{
			Shortcut("Copy", "ctrl+c"),
			Shortcut("Paste", "ctrl+v"),
			Shortcut("Undo", "ctrl+z"),
			Shortcut("Redo", "ctrl+shift+z"),
			Shortcut("Select All", "ctrl+a"),
			Shortcut("Cut", "ctrl+x"),
			Shortcut("Save", "ctrl+s"),
			Shortcut("Close", "ctrl+w"),
		},
	}
}

// ValidIcon accepts emoji, image file names and freedesktop icon names.
// Anything reaching outside the icon directories is refused.
func ValidIcon(icon string) bool {
	if icon == "" || strings.Contains(icon, "..") {
		return false
	}
	if r := []rune(icon)[0]; r > 0x1F300 {
		return true
	}
	lower := strings.ToLower(icon)
	for _, ext := range []string{".png", ".svg", ".ico"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	for _, r := range icon {
		if !(r == '-' || r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
