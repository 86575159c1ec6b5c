package presenter

import "github.com/charmbracelet/lipgloss"

type styles struct {
	heading lipgloss.Style
	index   lipgloss.Style
	item    lipgloss.Style
	empty   lipgloss.Style
}

func newStyles(styled bool) styles {
	if !styled {
		plain := lipgloss.NewStyle()
		return styles{heading: plain, index: plain, item: plain, empty: plain}
	}
	return styles{
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		index:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		item:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		empty:   lipgloss.NewStyle().Faint(true),
	}
}
