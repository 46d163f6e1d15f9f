// Package ui provides the lipgloss styles and terminal views of the radialmx CLI
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("86")  // Cyan

	ColorText   = lipgloss.Color("252")
	ColorSubtle = lipgloss.Color("241")
	ColorMuted  = lipgloss.Color("238")
)

var (
	TextStyle   = lipgloss.NewStyle().Foreground(ColorText)
	SubtleStyle = lipgloss.NewStyle().Foreground(ColorSubtle)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SubheaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText)

	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	InfoStyle    = lipgloss.NewStyle().Foreground(ColorInfo)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 2)

	KeyStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Width(16)

	HighlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	SpinnerStyle = lipgloss.NewStyle().Foreground(ColorSecondary)
)

// Status icons
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
	IconActive  = "●"
	IconIdle    = "○"
	IconSteps   = "→"
)

// FormatHeader renders a title with an optional muted subtitle and a rule.
func FormatHeader(title, subtitle string) string {
	head := HeaderStyle.Render("» " + title)
	if subtitle != "" {
		head += "  " + SubtleStyle.Render(subtitle)
	}
	return head + "\n" + CreateSeparator(50, "─")
}

// FormatKV renders one aligned key/value line.
func FormatKV(key, value string) string {
	return KeyStyle.Render(key) + TextStyle.Render(value)
}

// CheckLevel grades a doctor check.
type CheckLevel int

const (
	CheckOK CheckLevel = iota
	CheckWarn
	CheckFail
)

// FormatCheck renders a doctor line like "✓ uinput - writable".
func FormatCheck(level CheckLevel, label, detail string) string {
	var icon string
	var style lipgloss.Style
	switch level {
	case CheckOK:
		icon, style = SuccessStyle.Render(IconSuccess), SuccessStyle
	case CheckWarn:
		icon, style = WarningStyle.Render(IconWarning), WarningStyle
	default:
		icon, style = ErrorStyle.Render(IconError), ErrorStyle
	}
	line := "  " + icon + " " + label
	if detail != "" {
		line += " - " + style.Render(detail)
	}
	return line
}

// FormatDeviceState colors a device status word.
func FormatDeviceState(state string) string {
	switch state {
	case "ok":
		return SuccessStyle.Render(IconActive + " ok")
	case "degraded", "lost":
		return WarningStyle.Render(IconIdle + " " + state)
	default:
		return MutedStyle.Render(IconIdle + " " + state)
	}
}

// FormatSlices renders slice labels one per line, marking the highlighted one.
func FormatSlices(labels []string, highlighted int) string {
	var b strings.Builder
	for i, label := range labels {
		if label == "" {
			label = "-"
		}
		line := fmt.Sprintf("  [%d] %s", i, label)
		if i == highlighted {
			b.WriteString(HighlightStyle.Render(line + "  ◀"))
		} else {
			b.WriteString(TextStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// CreateSeparator creates a horizontal rule.
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50
	}
	if char == "" {
		char = "─"
	}
	return lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(strings.Repeat(char, width))
}
