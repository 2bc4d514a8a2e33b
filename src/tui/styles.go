package tui

import (
	"github.com/charmbracelet/lipgloss"

	"sift-agent/src/review"
)

// StyleConfig holds all customizable style colors for the review UI.
type StyleConfig struct {
	PrimaryBlue    lipgloss.Color
	AccentBlue     lipgloss.Color
	DarkBackground lipgloss.Color
	TextPrimary    lipgloss.Color
	TextSecondary  lipgloss.Color
	BorderColor    lipgloss.Color
	SelectedColor  lipgloss.Color
	AddedLine      lipgloss.Color

	// Severity colors, keyed by severity.
	SeverityColors map[review.Severity]lipgloss.Color
}

// DefaultStyles returns the default color palette
func DefaultStyles() *StyleConfig {
	return &StyleConfig{
		PrimaryBlue:    lipgloss.Color("#8AB4F8"),
		AccentBlue:     lipgloss.Color("#4285F4"),
		DarkBackground: lipgloss.Color("#1E1E1E"),
		TextPrimary:    lipgloss.Color("#E8EAED"),
		TextSecondary:  lipgloss.Color("#9AA0A6"),
		BorderColor:    lipgloss.Color("#5F6368"),
		SelectedColor:  lipgloss.Color("#303134"),
		AddedLine:      lipgloss.Color("#34A853"),
		SeverityColors: map[review.Severity]lipgloss.Color{
			review.SeverityError:      lipgloss.Color("#EA4335"),
			review.SeverityWarning:    lipgloss.Color("#FBBC04"),
			review.SeveritySuggestion: lipgloss.Color("#24C1E0"),
			review.SeverityNote:       lipgloss.Color("#9AA0A6"),
		},
	}
}

// SeverityStyle returns a bold style in the color of s.
func (s *StyleConfig) SeverityStyle(sev review.Severity) lipgloss.Style {
	color, ok := s.SeverityColors[sev]
	if !ok {
		color = s.TextSecondary
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}

// TitleStyle returns a title lipgloss style using this config
func (s *StyleConfig) TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.PrimaryBlue).
		Bold(true).
		Padding(0, 1)
}

// HelpStyle returns a help text lipgloss style using this config
func (s *StyleConfig) HelpStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.TextSecondary).
		Padding(0, 2)
}

// PanelStyle returns a bordered panel style, highlighted when focused.
func (s *StyleConfig) PanelStyle(focused bool) lipgloss.Style {
	border := s.BorderColor
	if focused {
		border = s.AccentBlue
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border)
}

// severityLabel is the fixed-width tag shown in the list.
func severityLabel(sev review.Severity) string {
	switch sev {
	case review.SeverityError:
		return "ERR "
	case review.SeverityWarning:
		return "WARN"
	case review.SeveritySuggestion:
		return "SUGG"
	case review.SeverityNote:
		return "NOTE"
	}
	return "????"
}
