package report

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Color modes accepted by --color.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Styles holds the color formatters for human-readable output.
type Styles struct {
	heading  *color.Color
	path     *color.Color
	rule     *color.Color
	critical *color.Color
	high     *color.Color
	medium   *color.Color
	low      *color.Color
	plain    *color.Color
}

// NewStyles creates color formatters.
// enabled=false respects --color never and the NO_COLOR env var
func NewStyles(enabled bool) *Styles {
	s := &Styles{
		heading:  color.New(color.Bold),
		path:     color.New(color.FgHiWhite),
		rule:     color.New(color.Bold, color.FgHiBlue),
		critical: color.New(color.Bold, color.FgHiRed),
		high:     color.New(color.FgRed),
		medium:   color.New(color.FgYellow),
		low:      color.New(color.FgCyan),
		plain:    color.New(),
	}

	if !enabled {
		for _, c := range []*color.Color{s.heading, s.path, s.rule, s.critical, s.high, s.medium, s.low, s.plain} {
			c.DisableColor()
		}
	} else {
		for _, c := range []*color.Color{s.heading, s.path, s.rule, s.critical, s.high, s.medium, s.low, s.plain} {
			c.EnableColor()
		}
	}

	return s
}

// PlainStyles returns styles with colors disabled.
func PlainStyles() *Styles {
	return NewStyles(false)
}

// ColorEnabled resolves a --color mode for the given output file.
func ColorEnabled(mode string, f *os.File) (bool, error) {
	switch mode {
	case ColorAlways:
		return true, nil
	case ColorNever:
		return false, nil
	case ColorAuto, "":
		if os.Getenv("NO_COLOR") != "" || f == nil {
			return false, nil
		}
		return term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("invalid color mode %q (want auto, always or never)", mode)
	}
}

// Severity colors a raw severity string.
func (s *Styles) Severity(sev string) string {
	switch types.ParseSeverity(sev) {
	case types.SeverityCritical:
		return s.critical.Sprint(sev)
	case types.SeverityHigh:
		return s.high.Sprint(sev)
	case types.SeverityMedium:
		return s.medium.Sprint(sev)
	case types.SeverityLow:
		return s.low.Sprint(sev)
	default:
		return s.plain.Sprint(sev)
	}
}
