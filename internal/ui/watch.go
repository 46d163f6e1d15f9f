package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/radialmx/internal/renderer"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// EnvelopeMsg carries one message received from the renderer hub.
type EnvelopeMsg struct {
	Envelope renderer.Envelope
}

// ConnErrMsg reports that the hub connection ended.
type ConnErrMsg struct {
	Err error
}

// Receiver blocks for the next hub message.
type Receiver interface {
	Receive() (renderer.Envelope, error)
}

// ReceiveCmd waits for one message from r.
func ReceiveCmd(r Receiver) tea.Cmd {
	return func() tea.Msg {
		env, err := r.Receive()
		if err != nil {
			return ConnErrMsg{Err: err}
		}
		return EnvelopeMsg{Envelope: env}
	}
}

const maxHistory = 8

// WatchModel shows live sessions as the daemon publishes them.
type WatchModel struct {
	addr     string
	receiver Receiver
	spinner  spinner.Model

	connected   bool
	err         error
	sessionID   uint64
	profile     string
	windowClass string
	anchor      string
	labels      []string
	highlighted int
	history     []string
	now         func() time.Time
}

// NewWatchModel creates the watch view for a connected receiver.
func NewWatchModel(addr string, r Receiver) *WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return &WatchModel{
		addr:        addr,
		receiver:    r,
		spinner:     s,
		highlighted: -1,
		now:         time.Now,
	}
}

// Err returns the connection error that ended the view, if any.
func (m *WatchModel) Err() error {
	return m.err
}

func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, ReceiveCmd(m.receiver))
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ConnErrMsg:
		m.err = msg.Err
		m.connected = false
		return m, tea.Quit

	case EnvelopeMsg:
		m.apply(msg.Envelope)
		return m, ReceiveCmd(m.receiver)
	}
	return m, nil
}

func (m *WatchModel) apply(env renderer.Envelope) {
	switch env.Type {
	case renderer.TypeHello:
		m.connected = true

	case renderer.TypeSessionOpened:
		m.sessionID = env.SessionID
		m.profile = env.Profile
		m.windowClass = env.WindowClass
		m.highlighted = -1
		m.labels = m.labels[:0]
		for _, s := range env.Slices {
			m.labels = append(m.labels, s.Label)
		}
		if env.Anchor != nil {
			m.anchor = fmt.Sprintf("(%.0f, %.0f) via %s", env.Anchor.X, env.Anchor.Y, env.Anchor.Strategy)
		}

	case renderer.TypeSliceHighlighted:
		if env.SessionID == m.sessionID && env.Index != nil {
			m.highlighted = *env.Index
		}

	case renderer.TypeSessionOutcome:
		line := fmt.Sprintf("#%d %s", env.SessionID, env.Outcome)
		if env.Index != nil && *env.Index >= 0 && *env.Index < len(m.labels) {
			line += " " + m.labels[*env.Index]
		}
		if env.Reason != "" {
			line += " (" + env.Reason + ")"
		}
		m.record(line)
		if env.SessionID == m.sessionID {
			m.sessionID = 0
			m.labels = nil
			m.highlighted = -1
		}

	case renderer.TypeActionResult:
		if env.OK != nil && !*env.OK {
			m.record(fmt.Sprintf("#%d action %q failed: %s", env.SessionID, env.Label, env.Error))
		}
	}
}

func (m *WatchModel) record(line string) {
	stamp := m.now().Format("15:04:05")
	m.history = append(m.history, stamp+" "+line)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

func (m *WatchModel) View() string {
	var b strings.Builder
	b.WriteString(FormatHeader("radialmx watch", m.addr))
	b.WriteString("\n")

	if !m.connected {
		b.WriteString(m.spinner.View() + " connecting...\n")
		return b.String()
	}

	if m.sessionID == 0 {
		b.WriteString(m.spinner.View() + SubtleStyle.Render(" waiting for a gesture press") + "\n")
	} else {
		var box strings.Builder
		box.WriteString(FormatKV("session", fmt.Sprintf("#%d", m.sessionID)) + "\n")
		box.WriteString(FormatKV("profile", m.profile) + "\n")
		if m.windowClass != "" {
			box.WriteString(FormatKV("window", m.windowClass) + "\n")
		}
		box.WriteString(FormatKV("anchor", m.anchor) + "\n\n")
		box.WriteString(FormatSlices(m.labels, m.highlighted))
		b.WriteString(BoxStyle.Render(box.String()))
		b.WriteString("\n")
	}

	if len(m.history) > 0 {
		b.WriteString("\n" + SubheaderStyle.Render("Recent") + "\n")
		for _, line := range m.history {
			b.WriteString("  " + MutedStyle.Render(line) + "\n")
		}
	}
	b.WriteString("\n" + SubtleStyle.Render("q to quit"))
	return b.String()
}
