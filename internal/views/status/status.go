// Package status renders the dashboard status bar.
package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/violencesense/vsense/internal/realtime"
	"github.com/violencesense/vsense/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	State       realtime.State
	Attempts    int
	MaxAttempts int
	Streams     int
	Violent     int
	Unread      int
	Flash       string // last action result
	FlashErr    bool
	Width       int
}

// New creates a status bar model.
func New() Model {
	return Model{MaxAttempts: 5}
}

// ConnLabel is the connection indicator text.
func (m Model) ConnLabel() string {
	switch m.State {
	case realtime.Connected:
		return "● Connected"
	case realtime.Connecting:
		return "◌ Connecting..."
	case realtime.Reconnecting:
		return fmt.Sprintf("◌ Reconnecting (%d/%d)", m.Attempts, m.MaxAttempts)
	default:
		return "○ Disconnected"
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	connStr := lipgloss.NewStyle().Foreground(theme.StateColor(m.State)).Render(m.ConnLabel())

	counts := fmt.Sprintf("%d streams  %d violent", m.Streams, m.Violent)
	if m.Violent > 0 {
		counts = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(counts)
	}

	alerts := fmt.Sprintf("%d unread alerts", m.Unread)
	if m.Unread > 0 {
		alerts = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWarning).Render(alerts)
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts + sep + alerts
	if m.Flash != "" {
		style := theme.StyleDimmed
		if m.FlashErr {
			style = theme.StyleError
		}
		content += sep + style.Render(m.Flash)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
