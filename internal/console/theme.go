package console

import "github.com/charmbracelet/lipgloss"

type theme struct {
	root       lipgloss.Style
	header     lipgloss.Style
	panel      lipgloss.Style
	panelTitle lipgloss.Style
	muted      lipgloss.Style
	status     lipgloss.Style
	errStatus  lipgloss.Style
	speaker    map[string]lipgloss.Style
	level      map[string]lipgloss.Style
}

func newTheme() theme {
	red := lipgloss.Color("#ff4d4f")
	amber := lipgloss.Color("#ffb020")
	green := lipgloss.Color("#3ddc84")
	blue := lipgloss.Color("#4ea8ff")
	muted := lipgloss.Color("#8a93a6")

	return theme{
		root: lipgloss.NewStyle().Padding(0, 1),
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#f5f7fa")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().Bold(true).Foreground(blue),
		muted:      lipgloss.NewStyle().Foreground(muted),
		status:     lipgloss.NewStyle().Foreground(green).Bold(true),
		errStatus:  lipgloss.NewStyle().Foreground(red).Bold(true),
		speaker: map[string]lipgloss.Style{
			"caller":     lipgloss.NewStyle().Foreground(amber).Bold(true),
			"dispatcher": lipgloss.NewStyle().Foreground(blue).Bold(true),
		},
		level: map[string]lipgloss.Style{
			"critical": lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Background(red).Bold(true).Padding(0, 1),
			"high":     lipgloss.NewStyle().Foreground(red).Bold(true),
			"medium":   lipgloss.NewStyle().Foreground(amber).Bold(true),
			"low":      lipgloss.NewStyle().Foreground(green).Bold(true),
		},
	}
}

func (t theme) speakerStyle(role string) lipgloss.Style {
	if s, ok := t.speaker[role]; ok {
		return s
	}
	return t.muted
}

func (t theme) levelStyle(level string) lipgloss.Style {
	if s, ok := t.level[level]; ok {
		return s
	}
	return t.muted
}
