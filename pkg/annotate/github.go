package annotate

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Step output names.
const (
	OutputMatches      = "yara-matches"
	OutputHighSeverity = "yara-high-severity"
)

// Emit writes one GitHub workflow command per match and returns how many
// matches were critical or high. Levels compare the severity exactly as the
// rule wrote it: "High" is a notice.
func Emit(w io.Writer, r *types.Report) int {
	high := 0
	for _, res := range r.Results {
		for _, m := range res.Matches {
			sev := m.Severity()
			title := fmt.Sprintf("YARA %s - %s", strings.ToUpper(sev), m.Category())
			msg := Message(res, m)

			switch types.Severity(sev) {
			case types.SeverityCritical, types.SeverityHigh:
				writeCommand(w, "error", title, msg)
				high++
			case types.SeverityMedium:
				writeCommand(w, "warning", title, msg)
			default:
				writeCommand(w, "notice", title, msg)
			}
		}
	}
	return high
}

// Message renders "[<package>: ]<file> - <rule>[ (<description>)]".
func Message(res types.Result, m types.Match) string {
	msg := res.File
	if res.PackageRef != nil && res.Package != "" {
		msg = res.Package + ": " + res.File
	}
	msg += " - " + m.Rule
	if d := m.Description(); d != "" {
		msg += " (" + d + ")"
	}
	return msg
}

func writeCommand(w io.Writer, command, title, msg string) {
	fmt.Fprintf(w, "::%s title=%s::%s\n", command, EscapeProperty(title), EscapeData(msg))
}

// EscapeData escapes a workflow command message.
func EscapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return strings.ReplaceAll(s, "\n", "%0A")
}

// EscapeProperty escapes a workflow command property value.
func EscapeProperty(s string) string {
	s = EscapeData(s)
	s = strings.ReplaceAll(s, ":", "%3A")
	return strings.ReplaceAll(s, ",", "%2C")
}

// WriteOutputs prints the step outputs to w and, when GITHUB_OUTPUT is set,
// appends them to that file.
func WriteOutputs(w io.Writer, filesWithMatches, highSeverity int, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.Getenv
	}
	lines := fmt.Sprintf("%s=%d\n%s=%d\n", OutputMatches, filesWithMatches, OutputHighSeverity, highSeverity)
	fmt.Fprint(w, "\n"+lines)

	path := lookup("GITHUB_OUTPUT")
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening GITHUB_OUTPUT: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(lines); err != nil {
		return fmt.Errorf("writing GITHUB_OUTPUT: %w", err)
	}
	return nil
}
