package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bnema/radialmx/internal/renderer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCheck(t *testing.T) {
	tests := []struct {
		name   string
		level  CheckLevel
		icon   string
		detail string
	}{
		{"ok", CheckOK, IconSuccess, "writable"},
		{"warn", CheckWarn, IconWarning, "no haptics"},
		{"fail", CheckFail, IconError, "permission denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatCheck(tt.level, "uinput", tt.detail)
			assert.Contains(t, got, tt.icon)
			assert.Contains(t, got, "uinput")
			assert.Contains(t, got, tt.detail)
		})
	}
}

func TestFormatSlices(t *testing.T) {
	got := FormatSlices([]string{"Copy", "", "Undo"}, 2)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "[0] Copy")
	assert.Contains(t, lines[1], "[1] -")
	assert.Contains(t, lines[2], "◀")
	assert.NotContains(t, lines[0], "◀")
}

func TestCreateSeparator(t *testing.T) {
	assert.Contains(t, CreateSeparator(3, "="), "===")
	assert.Contains(t, CreateSeparator(0, ""), strings.Repeat("─", 50))
}

type queueReceiver struct {
	envs []renderer.Envelope
}

func (q *queueReceiver) Receive() (renderer.Envelope, error) {
	if len(q.envs) == 0 {
		return renderer.Envelope{}, errors.New("closed")
	}
	env := q.envs[0]
	q.envs = q.envs[1:]
	return env, nil
}

func intp(v int) *int { return &v }

func TestWatchModel(t *testing.T) {
	m := NewWatchModel("127.0.0.1:7390", &queueReceiver{})
	m.now = func() time.Time { return time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC) }

	assert.Contains(t, m.View(), "connecting")

	m.Update(EnvelopeMsg{renderer.Envelope{Type: renderer.TypeHello}})
	assert.Contains(t, m.View(), "waiting for a gesture press")

	m.Update(EnvelopeMsg{renderer.Envelope{
		Type:      renderer.TypeSessionOpened,
		SessionID: 4,
		Profile:   "default",
		Anchor:    &renderer.Anchor{X: 640, Y: 400, Strategy: "static-center"},
		Slices:    []renderer.Slice{{Label: "Copy"}, {Label: "Paste"}, {Label: "Undo"}},
	}})
	view := m.View()
	assert.Contains(t, view, "#4")
	assert.Contains(t, view, "(640, 400) via static-center")
	assert.Contains(t, view, "Paste")

	m.Update(EnvelopeMsg{renderer.Envelope{Type: renderer.TypeSliceHighlighted, SessionID: 4, Index: intp(1)}})
	assert.Equal(t, 1, m.highlighted)

	// highlights of other sessions are ignored
	m.Update(EnvelopeMsg{renderer.Envelope{Type: renderer.TypeSliceHighlighted, SessionID: 3, Index: intp(2)}})
	assert.Equal(t, 1, m.highlighted)

	m.Update(EnvelopeMsg{renderer.Envelope{Type: renderer.TypeSessionOutcome, SessionID: 4, Outcome: "fired", Index: intp(1)}})
	require.Len(t, m.history, 1)
	assert.Equal(t, "10:30:00 #4 fired Paste", m.history[0])
	assert.Contains(t, m.View(), "waiting for a gesture press")

	falseVal := false
	m.Update(EnvelopeMsg{renderer.Envelope{Type: renderer.TypeActionResult, SessionID: 4, OK: &falseVal, Label: "Paste", Error: "no backend"}})
	require.Len(t, m.history, 2)
	assert.Contains(t, m.history[1], "no backend")
}

func TestWatchModelHistoryBounded(t *testing.T) {
	m := NewWatchModel("", &queueReceiver{})
	for i := 0; i < maxHistory+5; i++ {
		m.Update(EnvelopeMsg{renderer.Envelope{Type: renderer.TypeSessionOutcome, SessionID: uint64(i + 1), Outcome: "cancelled"}})
	}
	assert.Len(t, m.history, maxHistory)
	assert.Contains(t, m.history[maxHistory-1], "#13")
}

func TestWatchModelQuit(t *testing.T) {
	m := NewWatchModel("", &queueReceiver{})
	_, cmd := m.Update(ConnErrMsg{Err: errors.New("connection reset")})
	require.NotNil(t, cmd)
	assert.EqualError(t, m.Err(), "connection reset")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)
}

func TestReceiveCmd(t *testing.T) {
	r := &queueReceiver{envs: []renderer.Envelope{{Type: renderer.TypeHello}}}
	msg := ReceiveCmd(r)()
	env, ok := msg.(EnvelopeMsg)
	require.True(t, ok)
	assert.Equal(t, renderer.TypeHello, env.Envelope.Type)

	_, ok = ReceiveCmd(r)().(ConnErrMsg)
	assert.True(t, ok)
}
