// Package themes holds the color themes of the batch watcher.
package themes

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual style for the TUI.
type Theme struct {
	Title         lipgloss.Style
	Subtitle      lipgloss.Style
	Normal        lipgloss.Style
	Bold          lipgloss.Style
	RoundedBox    lipgloss.Style
	StatusPending lipgloss.Style
	StatusInfo    lipgloss.Style
	StatusError   lipgloss.Style
	StatusWarning lipgloss.Style
	StatusSuccess lipgloss.Style
	Help          lipgloss.Style
	Primary       lipgloss.Color
	Secondary     lipgloss.Color
	Muted         lipgloss.Color
	Border        lipgloss.Color
}

func build(primary, secondary, success, warning, errColor, info, fg, border, muted string) Theme {
	return Theme{
		Primary:   lipgloss.Color(primary),
		Secondary: lipgloss.Color(secondary),
		Muted:     lipgloss.Color(muted),
		Border:    lipgloss.Color(border),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(primary)).
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(muted)),
		Normal: lipgloss.NewStyle().
			Foreground(lipgloss.Color(fg)),
		Bold: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(fg)),
		RoundedBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(border)).
			Padding(1, 2),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(muted)).
			MarginTop(1),

		StatusSuccess: lipgloss.NewStyle().
			Foreground(lipgloss.Color(success)).
			Bold(true),
		StatusWarning: lipgloss.NewStyle().
			Foreground(lipgloss.Color(warning)).
			Bold(true),
		StatusError: lipgloss.NewStyle().
			Foreground(lipgloss.Color(errColor)).
			Bold(true),
		StatusInfo: lipgloss.NewStyle().
			Foreground(lipgloss.Color(info)).
			Bold(true),
		StatusPending: lipgloss.NewStyle().
			Foreground(lipgloss.Color(muted)).
			Italic(true),
	}
}

// Default is the default theme.
var Default = build("#7c3aed", "#a78bfa", "#10b981", "#f59e0b", "#ef4444", "#3b82f6", "#fafafa", "#404040", "#737373")

// CatppuccinMocha is the Catppuccin Mocha theme.
var CatppuccinMocha = build("#cba6f7", "#f5c2e7", "#a6e3a1", "#f9e2af", "#f38ba8", "#89dceb", "#cdd6f4", "#45475a", "#6c7086")

// ByName returns the named theme, or Default when the name is unknown.
func ByName(name string) Theme {
	switch name {
	case "catppuccin", "catppuccin-mocha":
		return CatppuccinMocha
	default:
		return Default
	}
}
