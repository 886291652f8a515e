// Package alerts provides the scrollable alert log overlay.
package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/violencesense/vsense/internal/realtime"
	"github.com/violencesense/vsense/internal/theme"
)

// Model holds the overlay state. Entries are most recent first.
type Model struct {
	Entries  []realtime.AlertMessage
	Selected int
}

// New creates an empty alerts model.
func New() Model {
	return Model{}
}

// SetEntries replaces the log snapshot, keeping the selection in range.
func (m *Model) SetEntries(entries []realtime.AlertMessage) {
	m.Entries = entries
	if m.Selected >= len(entries) {
		m.Selected = max(0, len(entries)-1)
	}
}

// Down moves the selection toward older alerts.
func (m *Model) Down(n int) {
	m.Selected = min(m.Selected+n, max(0, len(m.Entries)-1))
}

// Up moves the selection toward newer alerts.
func (m *Model) Up(n int) {
	m.Selected = max(m.Selected-n, 0)
}

// Current returns the selected alert.
func (m Model) Current() (realtime.AlertMessage, bool) {
	if len(m.Entries) == 0 {
		return realtime.AlertMessage{}, false
	}
	return m.Entries[m.Selected], true
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 40 {
		innerW = 40
	}
	visible := height - 8
	if visible < 3 {
		visible = 3
	}

	title := theme.StyleHeader.Render(" ALERTS ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:select  enter:detail  x:acknowledge  c:clear  esc:close  %d alerts", len(m.Entries)))

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  No alerts yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	// Keep the selection inside the window.
	start := 0
	if m.Selected >= visible {
		start = m.Selected - visible + 1
	}
	end := min(start+visible, len(m.Entries))

	var lines []string
	for i := start; i < end; i++ {
		prefix := "  "
		if i == m.Selected {
			prefix = "> "
		}
		lines = append(lines, prefix+renderEntry(m.Entries[i], innerW-6))
	}

	more := ""
	if rest := len(m.Entries) - end; rest > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d older", rest))
	}
	return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help))
}

func renderEntry(a realtime.AlertMessage, width int) string {
	sev := a.EffectiveSeverity()
	color := theme.SeverityColor(sev)

	ts := a.Timestamp
	if t, err := a.Time(); err == nil {
		ts = t.Local().Format(time.TimeOnly)
	}
	sevStr := lipgloss.NewStyle().Foreground(color).Bold(true).Width(10).
		Render(theme.SeverityGlyph(sev) + " " + string(sev))

	name := a.StreamName
	if name == "" {
		name = a.StreamID
	}
	msg := fmt.Sprintf("%-12s %-16s max %.2f", a.Type, name, a.MaxScore)
	if a.Duration != nil {
		msg += fmt.Sprintf("  %.1fs", *a.Duration)
	}
	if len(msg) > width-20 && width > 30 {
		msg = msg[:width-23] + "..."
	}
	return fmt.Sprintf("%s %s %s", theme.StyleDimmed.Render(ts), sevStr, msg)
}
