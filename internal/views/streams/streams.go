// Package streams renders the live stream list: one row per camera with a
// spring-smoothed violence score bar.
package streams

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/violencesense/vsense/internal/api"
	"github.com/violencesense/vsense/internal/realtime"
	"github.com/violencesense/vsense/internal/theme"
)

const (
	barWidth  = 24
	nameWidth = 20
)

// Row is one stream as the dashboard sees it.
type Row struct {
	ID       string
	Name     string
	Status   api.StreamStatus // from REST; empty when only seen on the socket
	Score    realtime.ScoreMessage
	HasScore bool

	// Displayed bar position and velocity, eased toward Score.ViolenceScore.
	Pos float64
	vel float64
}

// Model holds the stream list.
type Model struct {
	rows     map[string]*Row
	order    []string
	spring   harmonica.Spring
	Selected int
	Width    int
}

// New creates an empty list animated at the given frame interval.
func New(frame time.Duration) Model {
	if frame <= 0 {
		frame = 200 * time.Millisecond
	}
	return Model{
		rows:   make(map[string]*Row),
		spring: harmonica.NewSpring(harmonica.FPS(int(time.Second/frame)), 8.0, 0.9),
	}
}

func (m *Model) row(id string) *Row {
	r, ok := m.rows[id]
	if !ok {
		r = &Row{ID: id, Name: id}
		m.rows[id] = r
	}
	return r
}

// SetStreams merges the REST stream list. Streams missing from it keep
// their row only while they still report scores.
func (m *Model) SetStreams(streams []api.Stream) {
	known := make(map[string]bool, len(streams))
	for _, s := range streams {
		known[s.ID] = true
		r := m.row(s.ID)
		if s.Name != "" {
			r.Name = s.Name
		}
		r.Status = s.Status
	}
	for id, r := range m.rows {
		if !known[id] && !r.HasScore {
			delete(m.rows, id)
		}
	}
	m.rebuildOrder()
}

// SetScores installs the latest score snapshot.
func (m *Model) SetScores(scores map[string]realtime.ScoreMessage) {
	for id, s := range scores {
		r := m.row(id)
		r.Score = s
		r.HasScore = true
		if s.StreamName != "" && r.Name == r.ID {
			r.Name = s.StreamName
		}
	}
	m.rebuildOrder()
}

// Animate advances every bar one frame toward its score.
func (m *Model) Animate() {
	for _, r := range m.rows {
		r.Pos, r.vel = m.spring.Update(r.Pos, r.vel, r.Score.ViolenceScore)
	}
}

func (m *Model) rebuildOrder() {
	m.order = m.order[:0]
	for id := range m.rows {
		m.order = append(m.order, id)
	}
	sort.Slice(m.order, func(i, j int) bool {
		a, b := m.rows[m.order[i]], m.rows[m.order[j]]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	if m.Selected >= len(m.order) {
		m.Selected = max(0, len(m.order)-1)
	}
}

// IDs returns the stream ids in display order.
func (m Model) IDs() []string {
	return append([]string(nil), m.order...)
}

// Len returns the number of rows.
func (m Model) Len() int {
	return len(m.order)
}

// Violent counts streams whose latest score is violent.
func (m Model) Violent() int {
	n := 0
	for _, r := range m.rows {
		if r.HasScore && r.Score.IsViolent {
			n++
		}
	}
	return n
}

// SelectedRow returns the highlighted row.
func (m Model) SelectedRow() (Row, bool) {
	if len(m.order) == 0 {
		return Row{}, false
	}
	return *m.rows[m.order[m.Selected]], true
}

// Next moves the selection down, wrapping.
func (m *Model) Next() {
	if len(m.order) > 0 {
		m.Selected = (m.Selected + 1) % len(m.order)
	}
}

// Prev moves the selection up, wrapping.
func (m *Model) Prev() {
	if len(m.order) > 0 {
		m.Selected = (m.Selected - 1 + len(m.order)) % len(m.order)
	}
}

// View renders the list.
func (m Model) View() string {
	lines := []string{theme.StyleHeader.Render("=== STREAMS ==========================================================")}
	if len(m.order) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No streams known yet"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	for i, id := range m.order {
		prefix := "  "
		if i == m.Selected {
			prefix = "> "
		}
		lines = append(lines, prefix+renderRow(m.rows[id]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderRow(r *Row) string {
	name := truncate(r.Name, nameWidth)
	nameStr := lipgloss.NewStyle().Width(nameWidth).Render(name)

	if !r.HasScore {
		return nameStr + " " + theme.StyleDimmed.Render(strings.Repeat("·", barWidth)+"  no data  ") + statusStr(r.Status)
	}

	score := r.Score.ViolenceScore
	bar := renderBar(r.Pos, barWidth, theme.ScoreColor(score))
	scoreStr := fmt.Sprintf("%.2f", score)

	flag := theme.StyleDimmed.Render("  calm  ")
	if r.Score.IsViolent {
		flag = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render(" VIOLENT")
	}

	fps := ""
	if r.Score.FPS > 0 {
		fps = fmt.Sprintf("%4.0ffps", r.Score.FPS)
	}
	return fmt.Sprintf("%s %s %s %s %s  %s", nameStr, bar, scoreStr, flag, fps, statusStr(r.Status))
}

func statusStr(s api.StreamStatus) string {
	var color lipgloss.Color
	switch s {
	case api.StreamActive:
		color = theme.ColorHealthy
	case api.StreamConnecting:
		color = theme.ColorWarning
	case api.StreamError:
		color = theme.ColorDanger
	case "":
		return ""
	default:
		color = theme.ColorDimmed
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(s))
}

func renderBar(pct float64, width int, color lipgloss.Color) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(color).Render(bar)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
