package tui

import "github.com/charmbracelet/lipgloss"

var (
	// TitleStyle styles the render header line.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// PhaseStyle styles the current pipeline phase name.
	PhaseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))

	// MemoryStyle renders the memory readout faintly.
	MemoryStyle = lipgloss.NewStyle().Faint(true)

	statusStyles = map[string]lipgloss.Style{
		"rendered":  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"rendering": lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"degraded":  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"error":     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"pending":   lipgloss.NewStyle().Faint(true),
	}
)

// StatusStyle returns the lipgloss style for the given segment status.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
