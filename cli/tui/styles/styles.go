package styles

import (
	"github.com/briefcase-hq/briefcase/engine/agenttask"
	"github.com/charmbracelet/lipgloss"
)

var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#3B4CCA", Dark: "#8FA2FF"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6B6B6B", Dark: "#888888"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#1B873F", Dark: "#4ADE80"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B25E00", Dark: "#FBBF24"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF6B6B"}
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	HelpStyle    = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)
	BoxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1)
)

// StatusBadge renders a task status with its color.
func StatusBadge(status agenttask.Status) string {
	color := ColorPrimary
	switch status {
	case agenttask.StatusCompleted:
		color = ColorSuccess
	case agenttask.StatusFailed:
		color = ColorError
	case agenttask.StatusCancelled, agenttask.StatusCancelling:
		color = ColorWarning
	case agenttask.StatusPending:
		color = ColorMuted
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(string(status))
}
