package main

import "github.com/charmbracelet/lipgloss"

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// errorLabel renders an error prefix such as "tinker-agent attach:".
// Styling is dropped when output is not a terminal.
func errorLabel(s string) string { return errorStyle.Render(s) }

func warnLabel(s string) string { return warnStyle.Render(s) }
