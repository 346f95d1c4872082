package main

import "github.com/charmbracelet/lipgloss"

var (
	commandStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	responseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	headerStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
)
