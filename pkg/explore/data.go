package explore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/praetorian-inc/yarascan/pkg/enum"
	"github.com/praetorian-inc/yarascan/pkg/store"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

// exploreData holds the scan being browsed.
type exploreData struct {
	store   store.Store
	scan    *store.ScanInfo
	results []*resultRow
}

// loadData opens a results database and loads one scan with its
// annotations. An empty scanID selects the most recent scan.
func loadData(dbPath, scanID string) (*exploreData, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %s", dbPath)
	}

	s, err := store.New(store.Config{Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	data, err := loadFromStore(s, scanID)
	if err != nil {
		s.Close()
		return nil, err
	}
	return data, nil
}

// loadFromStore builds the view model of one scan held by s.
func loadFromStore(s store.Store, scanID string) (*exploreData, error) {
	var (
		info *store.ScanInfo
		err  error
	)
	if scanID != "" {
		info, err = s.GetScan(scanID)
	} else {
		info, err = store.Latest(s)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieving scan: %w", err)
	}

	report, err := s.GetReport(info.ID)
	if err != nil {
		return nil, fmt.Errorf("retrieving results: %w", err)
	}

	notes, err := s.GetAnnotations(info.ID)
	if err != nil {
		return nil, fmt.Errorf("retrieving annotations: %w", err)
	}

	rows := make([]*resultRow, 0, len(report.Results))
	for _, res := range report.Results {
		row := buildResultRow(res, notes)
		row.SourcePath = resolveSourcePath(info, res.File)
		rows = append(rows, row)
	}

	return &exploreData{store: s, scan: info, results: rows}, nil
}

// buildResultRow creates the view model of one matched target.
func buildResultRow(res types.Result, notes map[string]store.Annotation) *resultRow {
	row := &resultRow{
		File:       res.File,
		MatchCount: len(res.Matches),
		Severity:   types.SeverityUnknown,
	}
	if res.PackageRef != nil {
		row.Package = res.Package
		row.Version = res.Version
		row.SHA256 = res.SHA256
	}

	rules := make(map[string]bool)
	namespaces := make(map[string]bool)
	for _, m := range res.Matches {
		rules[m.Rule] = true
		namespaces[m.Namespace] = true
		if sev := types.ParseSeverity(m.Severity()); sev.Rank() > row.Severity.Rank() {
			row.Severity = sev
		}
		row.Matches = append(row.Matches, buildMatchRow(res.File, m, notes))
	}
	row.Rules = sortedKeys(rules)
	row.Namespaces = sortedKeys(namespaces)

	if a, ok := notes[store.ResultKey(res.File)]; ok {
		row.AnnotationStatus = a.Status
		row.Comment = a.Comment
	}
	return row
}

// buildMatchRow creates the view model of one rule hit.
func buildMatchRow(file string, m types.Match, notes map[string]store.Annotation) *matchRow {
	mr := &matchRow{
		Key:         store.MatchKey(file, m),
		Rule:        m.Rule,
		Namespace:   m.Namespace,
		Severity:    types.ParseSeverity(m.Severity()),
		Description: m.Description(),
		Category:    m.Category(),
		Tags:        m.Tags,
		Meta:        m.Meta,
		Strings:     m.Strings,
	}
	if a, ok := notes[mr.Key]; ok {
		mr.AnnotationStatus = a.Status
		mr.Comment = a.Comment
	}
	return mr
}

// resolveSourcePath maps a stored result back to a file on disk. Git and
// archive-member results have no on-disk file of their own.
func resolveSourcePath(info *store.ScanInfo, file string) string {
	switch info.Mode {
	case "dir":
		return filepath.Join(info.Source, filepath.FromSlash(file))
	case "manifest":
		return enum.ResolveManifestPath(filepath.Dir(info.Source), file)
	default:
		return ""
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// close closes the underlying store.
func (d *exploreData) close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// setResultAnnotation persists a result annotation.
func (d *exploreData) setResultAnnotation(r *resultRow) error {
	return d.store.SetAnnotation(d.scan.ID, store.ResultKey(r.File), store.Annotation{
		Status:  r.AnnotationStatus,
		Comment: r.Comment,
	})
}

// setMatchAnnotation persists a match annotation.
func (d *exploreData) setMatchAnnotation(m *matchRow) error {
	return d.store.SetAnnotation(d.scan.ID, m.Key, store.Annotation{
		Status:  m.AnnotationStatus,
		Comment: m.Comment,
	})
}
