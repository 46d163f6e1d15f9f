package keys

import (
	"testing"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		want uint16
		ok   bool
	}{
		{"KEY_F19", evdev.KEY_F19, true},
		{"f19", evdev.KEY_F19, true},
		{" Ctrl ", evdev.KEY_LEFTCTRL, true},
		{"btn_task", evdev.BTN_TASK, true},
		{"hyper", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Code(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseShortcut(t *testing.T) {
	codes, err := ParseShortcut("ctrl+shift+z")
	require.NoError(t, err)
	assert.Equal(t, []uint16{evdev.KEY_LEFTCTRL, evdev.KEY_LEFTSHIFT, evdev.KEY_Z}, codes)
	assert.True(t, IsModifier(codes[0]))
	assert.False(t, IsModifier(codes[2]))

	_, err = ParseShortcut("ctrl+nosuchkey")
	assert.Error(t, err)

	_, err = ParseShortcut("  ")
	assert.Error(t, err)
}
