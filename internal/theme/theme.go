// Package theme provides the Lip Gloss color palette and reusable styles
// for the ViolenceSense dashboard. It is a leaf package apart from the
// realtime wire types.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/violencesense/vsense/internal/realtime"
)

// Severity colors.
var (
	ColorLow      = lipgloss.Color("#22c55e")
	ColorMedium   = lipgloss.Color("#eab308")
	ColorHigh     = lipgloss.Color("#f97316")
	ColorCritical = lipgloss.Color("#dc2626")
)

// Score bar thresholds.
var (
	ColorScoreCalm  = lipgloss.Color("#22c55e") // <0.4
	ColorScoreTense = lipgloss.Color("#d97706") // 0.4-0.7
	ColorScoreAlarm = lipgloss.Color("#dc2626") // >=0.7
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorInfo    = lipgloss.Color("#3b82f6")
)

// SeverityColor returns the color for an alert severity.
func SeverityColor(s realtime.Severity) lipgloss.Color {
	switch s {
	case realtime.SeverityCritical:
		return ColorCritical
	case realtime.SeverityHigh:
		return ColorHigh
	case realtime.SeverityMedium:
		return ColorMedium
	case realtime.SeverityLow:
		return ColorLow
	default:
		return ColorDimmed
	}
}

// SeverityGlyph returns a short marker for an alert severity.
func SeverityGlyph(s realtime.Severity) string {
	switch s {
	case realtime.SeverityCritical:
		return "‼"
	case realtime.SeverityHigh:
		return "!"
	case realtime.SeverityMedium:
		return "▲"
	default:
		return "·"
	}
}

// ScoreColor returns the bar color for a violence score.
func ScoreColor(score float64) lipgloss.Color {
	switch {
	case score >= 0.7:
		return ColorScoreAlarm
	case score >= 0.4:
		return ColorScoreTense
	default:
		return ColorScoreCalm
	}
}

// StateColor returns the indicator color for a connection state.
func StateColor(s realtime.State) lipgloss.Color {
	switch s {
	case realtime.Connected:
		return ColorHealthy
	case realtime.Connecting, realtime.Reconnecting:
		return ColorWarning
	default:
		return ColorDanger
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)
