package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// FormatHuman renders findings for a terminal.
const FormatHuman = "human"

// WriteHuman prints one block per matched file followed by the summary.
func WriteHuman(w io.Writer, r *types.Report, s *Styles) {
	if s == nil {
		s = PlainStyles()
	}
	if len(r.Results) == 0 {
		fmt.Fprintf(w, "\nNo matches.\n")
		WriteSummary(w, r, s)
		return
	}

	for i, res := range r.Results {
		fmt.Fprintf(w, "\n%s %s\n",
			s.heading.Sprintf("Finding %d/%d:", i+1, len(r.Results)),
			s.path.Sprint(res.File))
		if res.PackageRef != nil {
			fmt.Fprintf(w, "  Package: %s@%s", res.Package, res.Version)
			if res.SHA256 != "" {
				fmt.Fprintf(w, " (sha256 %s)", res.SHA256)
			}
			fmt.Fprintln(w)
		}
		for _, m := range res.Matches {
			fmt.Fprintf(w, "  Rule: %s/%s (severity: %s)\n",
				m.Namespace, s.rule.Sprint(m.Rule), s.Severity(m.Severity()))
			if desc := m.Description(); desc != "" {
				fmt.Fprintf(w, "    %s\n", desc)
			}
			if len(m.Strings) > 0 {
				fmt.Fprintf(w, "    Strings: %s\n", formatStrings(m.Strings))
			}
		}
	}
	WriteSummary(w, r, s)
}

func formatStrings(ss []types.MatchString) string {
	parts := make([]string, 0, len(ss))
	for _, s := range ss {
		parts = append(parts, fmt.Sprintf("%s@%d", s.Identifier, s.Offset))
	}
	return strings.Join(parts, ", ")
}
