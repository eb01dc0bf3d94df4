package commands

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/vitaminmoo/ledctl/internal/errcode"
)

// Styles contains the lipgloss styles for command output.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Muted lipgloss.Style

	Online  lipgloss.Style
	Offline lipgloss.Style

	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Success lipgloss.Style
}

// DefaultStyles returns the default color scheme.
func DefaultStyles() Styles {
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special := lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	muted := lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}

	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight),

		Label: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}).
			Width(16),

		Value: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#343433", Dark: "#C1C6B2"}),

		Muted: lipgloss.NewStyle().
			Foreground(muted),

		Online: lipgloss.NewStyle().
			Foreground(special).
			Bold(true),

		Offline: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFCC00")),

		Info: lipgloss.NewStyle().
			Foreground(highlight),

		Success: lipgloss.NewStyle().
			Foreground(special),
	}
}

// Severity picks the style for an error's severity.
func (s Styles) Severity(sev errcode.Severity) lipgloss.Style {
	switch sev {
	case errcode.SeverityWarning:
		return s.Warning
	case errcode.SeverityInfo:
		return s.Info
	default:
		return s.Error
	}
}
