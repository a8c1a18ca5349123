// Package styles provides colour themes and styling for the chat TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Theme defines the colour palette of the TUI.
type Theme struct {
	// Primary is the main accent colour, used for the tutor.
	Primary lipgloss.Color

	// Secondary is the second accent colour, used for the student.
	Secondary lipgloss.Color

	// Background is the background colour.
	Background lipgloss.Color

	// Foreground is the default text colour.
	Foreground lipgloss.Color

	// Muted is for less important text.
	Muted lipgloss.Color

	// Success indicates positive outcomes.
	Success lipgloss.Color

	// Warning indicates caution, such as a usage limit nearing.
	Warning lipgloss.Color

	// Error indicates problems.
	Error lipgloss.Color

	// Border is the border colour.
	Border lipgloss.Color
}

// DefaultTheme returns the chalkboard palette.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:    lipgloss.Color("#2E9E6B"), // Board green
		Secondary:  lipgloss.Color("#5AA9E6"), // Sky blue
		Background: lipgloss.Color("#1B2421"), // Slate
		Foreground: lipgloss.Color("#E8EDE9"), // Chalk
		Muted:      lipgloss.Color("#7D8C86"), // Dusty gray
		Success:    lipgloss.Color("#9BE29B"), // Mint
		Warning:    lipgloss.Color("#F2C14E"), // Amber
		Error:      lipgloss.Color("#E56B6F"), // Coral
		Border:     lipgloss.Color("#3C4A45"), // Frame
	}
}

// Styles contains pre-configured lipgloss styles.
type Styles struct {
	theme *Theme

	Title      lipgloss.Style
	Subtitle   lipgloss.Style
	Normal     lipgloss.Style
	Muted      lipgloss.Style
	Selected   lipgloss.Style
	Error      lipgloss.Style
	Success    lipgloss.Style
	Warning    lipgloss.Style
	InputField lipgloss.Style
	StatusBar  lipgloss.Style
	Help       lipgloss.Style
	Border     lipgloss.Style

	// Student labels the user's turns.
	Student lipgloss.Style

	// Tutor labels the assistant's turns.
	Tutor lipgloss.Style

	// Citation marks excerpt numbers in the sources panel.
	Citation lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	return &Styles{
		theme: theme,

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Primary),

		Subtitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Secondary),

		Normal: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Foreground).
			Background(theme.Primary),

		Error: lipgloss.NewStyle().
			Foreground(theme.Error),

		Success: lipgloss.NewStyle().
			Foreground(theme.Success),

		Warning: lipgloss.NewStyle().
			Foreground(theme.Warning),

		InputField: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		StatusBar: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Background(theme.Background).
			Padding(0, 1),

		Help: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border),

		Student: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Secondary),

		Tutor: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Primary),

		Citation: lipgloss.NewStyle().
			Foreground(theme.Warning),
	}
}

// DefaultStyles returns styles with the default theme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// Theme returns the theme used by these styles.
func (s *Styles) Theme() *Theme {
	return s.theme
}

// Speaker returns the label style for a message role.
func (s *Styles) Speaker(role domain.Role) lipgloss.Style {
	if role == domain.RoleAssistant {
		return s.Tutor
	}
	return s.Student
}
