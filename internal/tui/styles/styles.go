// Package styles holds the shared lipgloss palette and the state glyph
// set used by both the live dashboard and the final report.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/gantryhq/gantry/internal/pipeline"
)

var (
	// Colors - chosen for contrast on both black and dark surfaces
	PrimaryColor = lipgloss.Color("#A78BFA") // Purple
	GreenColor   = lipgloss.Color("#10B981") // Green
	RedColor     = lipgloss.Color("#F87171") // Red
	AmberColor   = lipgloss.Color("#F59E0B") // Amber
	BlueColor    = lipgloss.Color("#60A5FA") // Blue
	MutedColor   = lipgloss.Color("#9CA3AF") // Gray
	TextColor    = lipgloss.Color("#F9FAFB") // Light text
	BorderColor  = lipgloss.Color("#6B7280") // Gray

	// Convenience styles
	Primary = lipgloss.NewStyle().Foreground(PrimaryColor)
	Good    = lipgloss.NewStyle().Foreground(GreenColor)
	Bad     = lipgloss.NewStyle().Foreground(RedColor)
	Warn    = lipgloss.NewStyle().Foreground(AmberColor)
	Active  = lipgloss.NewStyle().Foreground(BlueColor)
	Muted   = lipgloss.NewStyle().Foreground(MutedColor)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextColor)

	Footer = lipgloss.NewStyle().
		Foreground(MutedColor)
)

// Glyphs for item states.
const (
	GlyphInstalled = "✓"
	GlyphFailed    = "✗"
	GlyphSkipped   = "◌"
	GlyphPending   = "○"
	GlyphActive    = "⟳"
)

// Glyph returns the symbol for an item state.
func Glyph(s pipeline.State) string {
	switch s {
	case pipeline.StateInstalled:
		return GlyphInstalled
	case pipeline.StateFailed:
		return GlyphFailed
	case pipeline.StateSkipped:
		return GlyphSkipped
	case pipeline.StatePending:
		return GlyphPending
	default:
		return GlyphActive
	}
}

// GlyphStyle returns the color style matching a state's glyph.
func GlyphStyle(s pipeline.State) lipgloss.Style {
	switch s {
	case pipeline.StateInstalled:
		return Good
	case pipeline.StateFailed:
		return Bad
	case pipeline.StateSkipped:
		return Muted
	case pipeline.StatePending:
		return Muted
	default:
		return Active
	}
}

// RenderState renders the styled glyph for a state.
func RenderState(s pipeline.State) string {
	return GlyphStyle(s).Render(Glyph(s))
}
