package explore

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Colors
var (
	colorPrimary   = lipgloss.Color("#e63948")
	colorSecondary = lipgloss.Color("10")
	colorMatch     = lipgloss.Color("#D4AF37")
	colorMuted     = lipgloss.Color("8")
	colorAccent    = lipgloss.Color("#11C3DB")
	colorHighlight = lipgloss.Color("15")

	colorCritical = lipgloss.Color("13")
	colorHigh     = lipgloss.Color("9")
	colorMedium   = lipgloss.Color("11")
	colorLow      = lipgloss.Color("14")
)

// Pane borders
var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary)

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorMuted)
)

var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Background(colorPrimary).
	Padding(0, 1)

var (
	selectedRowStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("17")).
				Foreground(colorHighlight)

	headerRowStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)
)

var (
	stringIDStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorMatch)
	stringOffsetStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

var (
	criticalStyle = lipgloss.NewStyle().Foreground(colorCritical).Bold(true)
	highStyle     = lipgloss.NewStyle().Foreground(colorHigh).Bold(true)
	mediumStyle   = lipgloss.NewStyle().Foreground(colorMedium)
	lowStyle      = lipgloss.NewStyle().Foreground(colorLow)
	infoStyle     = lipgloss.NewStyle().Foreground(colorMuted)
)

var statusBarStyle = lipgloss.NewStyle().Foreground(colorMuted)

var (
	helpKeyStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	helpDescStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

var (
	facetLabelStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	facetSelectedStyle = lipgloss.NewStyle().Foreground(colorSecondary)
	facetCountStyle    = lipgloss.NewStyle().Foreground(colorMuted)
)

var (
	acceptStyle = lipgloss.NewStyle().Foreground(colorSecondary).Bold(true)
	rejectStyle = lipgloss.NewStyle().Foreground(colorHigh).Bold(true)
)

var (
	fieldLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	fieldValueStyle = lipgloss.NewStyle().Foreground(colorHighlight)
)

var modalStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// renderSeverity returns a styled severity label.
func renderSeverity(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return criticalStyle.Render(string(s))
	case types.SeverityHigh:
		return highStyle.Render(string(s))
	case types.SeverityMedium:
		return mediumStyle.Render(string(s))
	case types.SeverityLow:
		return lowStyle.Render(string(s))
	default:
		return infoStyle.Render(string(s))
	}
}

// renderAnnotationStatus returns a styled triage status.
func renderAnnotationStatus(status string) string {
	switch status {
	case "accept":
		return acceptStyle.Render("accept")
	case "reject":
		return rejectStyle.Render("reject")
	default:
		return ""
	}
}
