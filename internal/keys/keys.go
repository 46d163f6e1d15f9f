// Package keys maps human key names to evdev key codes.
package keys

import (
	"fmt"
	"strings"

	evdev "github.com/gvalkov/golang-evdev"
)

var byName = map[string]uint16{
	"esc": evdev.KEY_ESC, "escape": evdev.KEY_ESC,
	"enter": evdev.KEY_ENTER, "return": evdev.KEY_ENTER,
	"tab": evdev.KEY_TAB, "space": evdev.KEY_SPACE,
	"backspace": evdev.KEY_BACKSPACE, "delete": evdev.KEY_DELETE, "del": evdev.KEY_DELETE,
	"insert": evdev.KEY_INSERT, "home": evdev.KEY_HOME, "end": evdev.KEY_END,
	"pageup": evdev.KEY_PAGEUP, "pagedown": evdev.KEY_PAGEDOWN,
	"up": evdev.KEY_UP, "down": evdev.KEY_DOWN, "left": evdev.KEY_LEFT, "right": evdev.KEY_RIGHT,
	"print": evdev.KEY_SYSRQ, "printscreen": evdev.KEY_SYSRQ,
	"minus": evdev.KEY_MINUS, "equal": evdev.KEY_EQUAL, "plus": evdev.KEY_EQUAL,
	"comma": evdev.KEY_COMMA, "period": evdev.KEY_DOT, "dot": evdev.KEY_DOT, "slash": evdev.KEY_SLASH,
	"semicolon": evdev.KEY_SEMICOLON, "apostrophe": evdev.KEY_APOSTROPHE, "grave": evdev.KEY_GRAVE,
	"leftbrace": evdev.KEY_LEFTBRACE, "rightbrace": evdev.KEY_RIGHTBRACE, "backslash": evdev.KEY_BACKSLASH,

	"ctrl": evdev.KEY_LEFTCTRL, "control": evdev.KEY_LEFTCTRL, "rctrl": evdev.KEY_RIGHTCTRL,
	"shift": evdev.KEY_LEFTSHIFT, "rshift": evdev.KEY_RIGHTSHIFT,
	"alt": evdev.KEY_LEFTALT, "altgr": evdev.KEY_RIGHTALT,
	"super": evdev.KEY_LEFTMETA, "meta": evdev.KEY_LEFTMETA, "win": evdev.KEY_LEFTMETA, "logo": evdev.KEY_LEFTMETA,

	"a": evdev.KEY_A, "b": evdev.KEY_B, "c": evdev.KEY_C, "d": evdev.KEY_D, "e": evdev.KEY_E,
	"f": evdev.KEY_F, "g": evdev.KEY_G, "h": evdev.KEY_H, "i": evdev.KEY_I, "j": evdev.KEY_J,
	"k": evdev.KEY_K, "l": evdev.KEY_L, "m": evdev.KEY_M, "n": evdev.KEY_N, "o": evdev.KEY_O,
	"p": evdev.KEY_P, "q": evdev.KEY_Q, "r": evdev.KEY_R, "s": evdev.KEY_S, "t": evdev.KEY_T,
	"u": evdev.KEY_U, "v": evdev.KEY_V, "w": evdev.KEY_W, "x": evdev.KEY_X, "y": evdev.KEY_Y,
	"z": evdev.KEY_Z,

	"0": evdev.KEY_0, "1": evdev.KEY_1, "2": evdev.KEY_2, "3": evdev.KEY_3, "4": evdev.KEY_4,
	"5": evdev.KEY_5, "6": evdev.KEY_6, "7": evdev.KEY_7, "8": evdev.KEY_8, "9": evdev.KEY_9,

	"f1": evdev.KEY_F1, "f2": evdev.KEY_F2, "f3": evdev.KEY_F3, "f4": evdev.KEY_F4,
	"f5": evdev.KEY_F5, "f6": evdev.KEY_F6, "f7": evdev.KEY_F7, "f8": evdev.KEY_F8,
	"f9": evdev.KEY_F9, "f10": evdev.KEY_F10, "f11": evdev.KEY_F11, "f12": evdev.KEY_F12,
	"f13": evdev.KEY_F13, "f14": evdev.KEY_F14, "f15": evdev.KEY_F15, "f16": evdev.KEY_F16,
	"f17": evdev.KEY_F17, "f18": evdev.KEY_F18, "f19": evdev.KEY_F19, "f20": evdev.KEY_F20,
	"f21": evdev.KEY_F21, "f22": evdev.KEY_F22, "f23": evdev.KEY_F23, "f24": evdev.KEY_F24,

	"volumeup": evdev.KEY_VOLUMEUP, "volumedown": evdev.KEY_VOLUMEDOWN, "mute": evdev.KEY_MUTE,
	"playpause": evdev.KEY_PLAYPAUSE, "nextsong": evdev.KEY_NEXTSONG, "previoussong": evdev.KEY_PREVIOUSSONG,

	"btn_side": evdev.BTN_SIDE, "btn_extra": evdev.BTN_EXTRA, "btn_forward": evdev.BTN_FORWARD,
	"btn_back": evdev.BTN_BACK, "btn_task": evdev.BTN_TASK, "btn_middle": evdev.BTN_MIDDLE,
}

var modifiers = map[uint16]bool{
	evdev.KEY_LEFTCTRL: true, evdev.KEY_RIGHTCTRL: true,
	evdev.KEY_LEFTSHIFT: true, evdev.KEY_RIGHTSHIFT: true,
	evdev.KEY_LEFTALT: true, evdev.KEY_RIGHTALT: true,
	evdev.KEY_LEFTMETA: true, evdev.KEY_RIGHTMETA: true,
}

// Code resolves a key name. Both "KEY_F19" and "f19" forms are accepted,
// case-insensitively.
func Code(name string) (uint16, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "key_")
	code, ok := byName[n]
	return code, ok
}

// IsModifier reports whether code is a modifier key.
func IsModifier(code uint16) bool {
	return modifiers[code]
}

// ParseShortcut splits "ctrl+shift+z" into key codes in press order.
func ParseShortcut(s string) ([]uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty shortcut")
	}
	parts := strings.Split(s, "+")
	codes := make([]uint16, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("empty key in shortcut %q", s)
		}
		code, ok := Code(p)
		if !ok {
			return nil, fmt.Errorf("unknown key %q in shortcut %q", p, s)
		}
		codes = append(codes, code)
	}
	return codes, nil
}
