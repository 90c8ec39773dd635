// Package sarif converts scan reports to SARIF 2.1.0.
package sarif

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	gosarif "github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Tool identity written into every run.
const (
	ToolName           = "yarascan"
	ToolInformationURI = "https://github.com/praetorian-inc/yarascan"
)

// Options for FromReport.
type Options struct {
	// ToolVersion is written to the driver.
	ToolVersion string

	// Rules are the compiled rule sources; each matched rule records the
	// file it came from.
	Rules []types.RuleSource
}

// FromReport builds a SARIF log with one run holding every match.
// Rule IDs are "<namespace>/<rule>".
func FromReport(r *types.Report, opts Options) (*gosarif.Report, error) {
	doc, err := gosarif.New(gosarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := gosarif.NewRunWithInformationURI(ToolName, ToolInformationURI)
	if opts.ToolVersion != "" {
		version := opts.ToolVersion
		run.Tool.Driver.Version = &version
	}

	sources := make(map[string]string, len(opts.Rules))
	for _, src := range opts.Rules {
		sources[src.Namespace] = src.Path
	}

	seen := make(map[string]bool)
	for _, res := range r.Results {
		for _, m := range res.Matches {
			id := RuleID(m)
			if !seen[id] {
				seen[id] = true
				addRule(run, id, m, sources[m.Namespace])
			}
			run.AddResult(newResult(id, res, m))
		}
	}

	doc.AddRun(run)
	return doc, nil
}

// Write pretty-prints doc to w.
func Write(w io.Writer, doc *gosarif.Report) error {
	if err := doc.PrettyWrite(w); err != nil {
		return fmt.Errorf("writing SARIF report: %w", err)
	}
	return nil
}

// RuleID is the SARIF rule identifier of a match.
func RuleID(m types.Match) string {
	return m.Namespace + "/" + m.Rule
}

// Level maps a rule severity to a SARIF result level.
func Level(severity string) string {
	switch types.ParseSeverity(severity) {
	case types.SeverityCritical, types.SeverityHigh:
		return "error"
	case types.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

func addRule(run *gosarif.Run, id string, m types.Match, source string) {
	desc := m.Description()
	if desc == "" {
		desc = m.Rule
	}
	rule := run.AddRule(id).
		WithName(m.Rule).
		WithDescription(desc).
		WithDefaultConfiguration(&gosarif.ReportingConfiguration{
			Level: Level(m.Severity()),
		})

	props := map[string]interface{}{
		"namespace": m.Namespace,
		"severity":  m.Severity(),
	}
	if len(m.Tags) > 0 {
		props["tags"] = m.Tags
	}
	if c := m.Category(); c != "" {
		props["category"] = c
	}
	if source != "" {
		props["source"] = filepath.ToSlash(source)
	}
	rule.WithProperties(props)
}

func newResult(id string, res types.Result, m types.Match) *gosarif.Result {
	msg := fmt.Sprintf("%s matched %s", m.Rule, res.File)
	if d := m.Description(); d != "" {
		msg += " (" + d + ")"
	}

	physical := gosarif.NewPhysicalLocation().
		WithArtifactLocation(gosarif.NewArtifactLocation().WithUri(formatFileURI(res.File)))
	if len(m.Strings) > 0 {
		physical = physical.WithRegion(gosarif.NewRegion().WithByteOffset(int(m.Strings[0].Offset)))
	}

	result := gosarif.NewRuleResult(id).
		WithMessage(gosarif.NewTextMessage(msg)).
		WithLevel(Level(m.Severity())).
		WithLocations([]*gosarif.Location{gosarif.NewLocation().WithPhysicalLocation(physical)})

	props := map[string]interface{}{
		"strings": stringIdentifiers(m),
	}
	if res.PackageRef != nil {
		props["package"] = res.Package
		props["version"] = res.Version
		if res.SHA256 != "" {
			props["sha256"] = res.SHA256
		}
	}
	result.Properties = props
	return result
}

// stringIdentifiers lists matched string identifiers in a stable order.
func stringIdentifiers(m types.Match) []string {
	ids := make([]string, 0, len(m.Strings))
	for _, s := range m.Strings {
		ids = append(ids, s.Identifier)
	}
	sort.Strings(ids)
	return ids
}

// formatFileURI converts a file path to SARIF URI format
// Absolute paths get file:// prefix, relative paths stay as-is
func formatFileURI(path string) string {
	if filepath.IsAbs(path) {
		path = filepath.ToSlash(path)
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return "file://" + path
	}
	return filepath.ToSlash(path)
}
