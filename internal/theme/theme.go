package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// Styles is the set of styles a Printer renders with. Each Printer builds
// its own from its renderer so color detection follows the output stream.
type Styles struct {
	Header  lipgloss.Style
	Added   lipgloss.Style
	Created lipgloss.Style
	Skipped lipgloss.Style
	Info    lipgloss.Style
	Muted   lipgloss.Style
	Border  lipgloss.Style
}

// NewStyles builds the palette for a renderer.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Header:  r.NewStyle().Bold(true).Foreground(ColorBlue),
		Added:   r.NewStyle().Foreground(ColorGreen),
		Created: r.NewStyle().Bold(true).Foreground(ColorGreen),
		Skipped: r.NewStyle().Foreground(ColorYellow),
		Info:    r.NewStyle(),
		Muted:   r.NewStyle().Foreground(ColorGray).Italic(true),
		Border:  r.NewStyle().Foreground(ColorBorder),
	}
}

// StatusStyle returns a color-coded style for a run status.
func (s Styles) StatusStyle(status string) lipgloss.Style {
	base := s.Info.Bold(true)

	switch status {
	case "succeeded":
		return base.Foreground(ColorGreen)
	case "failed":
		return base.Foreground(ColorRed)
	case "running":
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorGray)
	}
}
