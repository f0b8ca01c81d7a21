// Package theme holds the lipgloss styles of the command-line output.
package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
)

// HeaderStyle is used for table headers and command titles.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// LabelStyle renders the key of a key/value line.
var LabelStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Width(14)

// SuccessStyle marks a passed check.
var SuccessStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorGreen)

// ErrorStyle marks a failed check.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// HelpStyle is used for hints and secondary text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// RecordTypeStyle returns a color-coded style for a record type.
func RecordTypeStyle(recordType string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Width(13)

	switch recordType {
	case "organization":
		return base.Foreground(ColorMagenta)
	case "user":
		return base.Foreground(ColorBlue)
	case "ticket":
		return base.Foreground(ColorYellow)
	case "comment":
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// RunStyle colors a run summary by outcome: red when records were lost,
// yellow when something was skipped, green otherwise.
func RunStyle(failed, skipped, stageErrors int) lipgloss.Style {
	base := lipgloss.NewStyle()

	switch {
	case failed > 0 || stageErrors > 0:
		return base.Foreground(ColorRed)
	case skipped > 0:
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorGreen)
	}
}

// KeyValue renders one aligned "label value" line.
func KeyValue(label string, value any) string {
	return LabelStyle.Render(label) + fmt.Sprint(value)
}
