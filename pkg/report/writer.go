package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/praetorian-inc/yarascan/pkg/sarif"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// WriteSummary prints the end-of-scan counters.
func WriteSummary(w io.Writer, r *types.Report, s *Styles) {
	if s == nil {
		s = PlainStyles()
	}
	fmt.Fprintf(w, "\n%s\n", s.heading.Sprint("=== YARA Scan Summary ==="))
	fmt.Fprintf(w, "Files scanned: %d\n", r.TotalScanned)
	fmt.Fprintf(w, "Files with matches: %d\n", r.FilesWithMatches)
	fmt.Fprintf(w, "Total matches: %d\n", r.TotalMatches)
}

// WriteJSON writes the report as 2-space indented JSON.
func WriteJSON(w io.Writer, r *types.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("encoding JSON report: %w", err)
	}
	return nil
}

// WriteSARIF writes the report as a SARIF 2.1.0 log.
func WriteSARIF(w io.Writer, r *types.Report, rules []types.RuleSource, version string) error {
	doc, err := sarif.FromReport(r, sarif.Options{ToolVersion: version, Rules: rules})
	if err != nil {
		return err
	}
	return sarif.Write(w, doc)
}

// Write renders the report in the given format.
func Write(w io.Writer, format string, r *types.Report, rules []types.RuleSource, version string) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, r)
	case FormatSARIF:
		return WriteSARIF(w, r, rules, version)
	default:
		return fmt.Errorf("unknown format %q (want json or sarif)", format)
	}
}
