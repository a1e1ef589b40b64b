package main

import "github.com/charmbracelet/lipgloss"

const sidebarWidth = 28

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	chatStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	selectedItemStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("170"))

	onlineDotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("203"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	typingStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("42"))

	tombstoneStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("241"))

	attachmentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	ownMessageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	peerMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))
)

func joinPanes(left, right string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}
