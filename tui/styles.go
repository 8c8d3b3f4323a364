// Package tui provides terminal output for camwatch: the run summary printed
// after every reconciliation and the live fleet monitor dashboard.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Color palette for consistent theming
var (
	ColorPrimary    = lipgloss.Color("#7D56F4") // Purple
	ColorSecondary  = lipgloss.Color("#6C757D") // Gray
	ColorSuccess    = lipgloss.Color("#28A745") // Green
	ColorWarning    = lipgloss.Color("#FFC107") // Yellow
	ColorError      = lipgloss.Color("#DC3545") // Red
	ColorInfo       = lipgloss.Color("#17A2B8") // Blue
	ColorMuted      = lipgloss.Color("#6C757D") // Muted gray
	ColorForeground = lipgloss.Color("#CDD6F4") // Light foreground
)

// Status indicator symbols
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolPending = "○"
	SymbolBullet  = "•"
)

// Styles provides consistent styling across the terminal output.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Muted   lipgloss.Style

	Panel       lipgloss.Style
	TableHeader lipgloss.Style

	Help lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorForeground),

		Success: lipgloss.NewStyle().
			Foreground(ColorSuccess),

		Error: lipgloss.NewStyle().
			Foreground(ColorError),

		Warning: lipgloss.NewStyle().
			Foreground(ColorWarning),

		Info: lipgloss.NewStyle().
			Foreground(ColorInfo),

		Muted: lipgloss.NewStyle().
			Foreground(ColorMuted),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSecondary).
			Padding(0, 1),

		TableHeader: lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(ColorSecondary),

		Help: lipgloss.NewStyle().
			Foreground(ColorMuted),
	}
}

// PlainStyles returns a no-color style configuration for dumb terminals and
// logs piped to files.
func PlainStyles() *Styles {
	plain := lipgloss.NewStyle()
	return &Styles{
		Title:       plain,
		Subtitle:    plain,
		Success:     plain,
		Error:       plain,
		Warning:     plain,
		Info:        plain,
		Muted:       plain,
		Panel:       plain,
		TableHeader: plain,
		Help:        plain,
	}
}

// DeploymentIcon returns a styled status icon for one deployment row.
func (s *Styles) DeploymentIcon(isMissing, needsAttention bool) string {
	switch {
	case isMissing:
		return s.Error.Render(SymbolError)
	case needsAttention:
		return s.Warning.Render(SymbolWarning)
	default:
		return s.Success.Render(SymbolSuccess)
	}
}

// FormatDuration formats a duration into a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
