package console

import "github.com/charmbracelet/lipgloss"

// Theme defines all colors used by the console.
type Theme struct {
	Primary   lipgloss.Color // title, spinner
	Secondary lipgloss.Color // session name
	Error     lipgloss.Color // error halts
	Warning   lipgloss.Color // dispatching
	Success   lipgloss.Color // polling, finished
	Text      lipgloss.Color // pane line
	TextMuted lipgloss.Color // labels, hints
	Border    lipgloss.Color // separator
}

// DarkTheme returns the default dark theme.
func DarkTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#fab283"),
		Secondary: lipgloss.Color("#5c9cf5"),
		Error:     lipgloss.Color("#e06c75"),
		Warning:   lipgloss.Color("#f5a742"),
		Success:   lipgloss.Color("#7fd88f"),
		Text:      lipgloss.Color("#eeeeee"),
		TextMuted: lipgloss.Color("#808080"),
		Border:    lipgloss.Color("#484848"),
	}
}

// LightTheme returns a light theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#b35c00"),
		Secondary: lipgloss.Color("#0550ae"),
		Error:     lipgloss.Color("#cf222e"),
		Warning:   lipgloss.Color("#bf8700"),
		Success:   lipgloss.Color("#116329"),
		Text:      lipgloss.Color("#1f2328"),
		TextMuted: lipgloss.Color("#656d76"),
		Border:    lipgloss.Color("#d0d7de"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// styles holds all lipgloss styles derived from a Theme.
type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	session lipgloss.Style
	text    lipgloss.Style
	rule    lipgloss.Style
	polling lipgloss.Style
	busy    lipgloss.Style
	err     lipgloss.Style
	spinner lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		label:   lipgloss.NewStyle().Foreground(t.TextMuted),
		session: lipgloss.NewStyle().Bold(true).Foreground(t.Secondary),
		text:    lipgloss.NewStyle().Foreground(t.Text),
		rule:    lipgloss.NewStyle().Foreground(t.Border),
		polling: lipgloss.NewStyle().Foreground(t.Success),
		busy:    lipgloss.NewStyle().Foreground(t.Warning),
		err:     lipgloss.NewStyle().Foreground(t.Error),
		spinner: lipgloss.NewStyle().Foreground(t.Primary),
	}
}
