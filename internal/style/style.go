// Package style centralizes terminal styling for CLI output.
package style

import "github.com/charmbracelet/lipgloss"

// Color palette shared by CLI output and the watch TUI.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"} // Blue
	ColorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#aad94c"} // Green
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"} // Yellow
	ColorFail   = lipgloss.AdaptiveColor{Light: "#e65050", Dark: "#f07178"} // Red
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#8a9199", Dark: "#565b66"} // Gray
)

var (
	Bold = lipgloss.NewStyle().Bold(true)

	Dim = lipgloss.NewStyle().
		Foreground(ColorMuted)

	Heading = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent)

	Success = lipgloss.NewStyle().
		Foreground(ColorPass)

	Warning = lipgloss.NewStyle().
		Foreground(ColorWarn)

	Error = lipgloss.NewStyle().
		Foreground(ColorFail).
		Bold(true)

	// Timestamp renders log record times in the merged log view.
	Timestamp = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// Author renders usernames in log and plan output.
	Author = lipgloss.NewStyle().
		Foreground(ColorAccent)
)
