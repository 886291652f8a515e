// Package detail renders a single alert as a markdown flyout.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/violencesense/vsense/internal/realtime"
	"github.com/violencesense/vsense/internal/theme"
)

const panelWidth = 72

var stylePanel = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(theme.ColorBorder).
	Padding(0, 1)

// Model holds the state for the detail overlay.
type Model struct {
	Alert *realtime.AlertMessage
	Err   string

	style  string
	lines  []string
	offset int
	height int
}

// New creates an empty detail model. style is a glamour standard style
// such as "dark", "light" or "notty".
func New(style string) Model {
	if style == "" {
		style = "dark"
	}
	return Model{style: style, height: 16}
}

// Show renders a and scrolls to the top.
func (m *Model) Show(a realtime.AlertMessage, height int) {
	m.Alert = &a
	m.Err = ""
	m.height = max(6, height-6)
	m.lines = strings.Split(m.render(Markdown(a)), "\n")
	m.offset = 0
}

func (m *Model) render(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(panelWidth-6),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// ScrollDown scrolls the body.
func (m *Model) ScrollDown(n int) {
	m.offset = min(m.offset+n, max(0, len(m.lines)-m.height))
}

// ScrollUp scrolls the body.
func (m *Model) ScrollUp(n int) {
	m.offset = max(m.offset-n, 0)
}

// View renders the panel. Returns an empty string if no alert is set.
func (m Model) View() string {
	if m.Alert == nil {
		return ""
	}
	end := min(m.offset+m.height, len(m.lines))
	body := strings.Join(m.lines[m.offset:end], "\n")
	if m.Err != "" {
		body += "\n" + theme.StyleError.Render(m.Err)
	}
	footer := theme.StyleDimmed.Render("[x] acknowledge  [j/k] scroll  [esc] close")
	return stylePanel.Width(panelWidth).Render(body + "\n" + footer)
}

// Markdown describes an alert for the flyout.
func Markdown(a realtime.AlertMessage) string {
	var b strings.Builder

	name := a.StreamName
	if name == "" {
		name = a.StreamID
	}
	sev := a.EffectiveSeverity()
	fmt.Fprintf(&b, "# %s %s\n\n", titleFor(a.Type), name)
	if a.Message != "" {
		fmt.Fprintf(&b, "> %s\n\n", a.Message)
	}

	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) { fmt.Fprintf(&b, "| %s | %s |\n", k, v) }
	row("Severity", "**"+strings.ToUpper(string(sev))+"**")
	row("Max score", fmt.Sprintf("%.2f", a.MaxScore))
	if a.Confidence != nil {
		row("Confidence", fmt.Sprintf("%.0f%%", *a.Confidence*100))
	}
	row("Stream", fmt.Sprintf("`%s`", a.StreamID))
	if a.EventID != "" {
		row("Event", fmt.Sprintf("`%s`", a.EventID))
	}
	if a.StartTime != "" {
		row("Started", formatTime(a.StartTime))
	}
	row("Received", formatTime(a.Timestamp))
	if a.Duration != nil {
		row("Duration", fmt.Sprintf("%.1fs", *a.Duration))
	}

	if a.ClipPath != "" || a.ThumbnailPath != "" {
		b.WriteString("\n## Evidence\n\n")
		if a.ClipPath != "" {
			clip := a.ClipPath
			if a.ClipDuration != nil {
				clip += fmt.Sprintf(" (%.1fs)", *a.ClipDuration)
			}
			fmt.Fprintf(&b, "- Clip: %s\n", clip)
		}
		if a.ThumbnailPath != "" {
			fmt.Fprintf(&b, "- Thumbnail: %s\n", a.ThumbnailPath)
		}
	}
	return b.String()
}

func titleFor(t realtime.MessageType) string {
	switch t {
	case realtime.MsgEventStart:
		return "Violence started on"
	case realtime.MsgEventEnd:
		return "Incident ended on"
	case realtime.MsgViolenceAlert:
		return "Violence alert on"
	default:
		return "Alert on"
	}
}

func formatTime(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
