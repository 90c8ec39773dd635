package types

// Result is one scanned target that produced at least one match.
// Manifest targets also carry their package identity, which encoding/json
// flattens into the result object.
type Result struct {
	File string `json:"file"`
	*PackageRef
	Matches []Match `json:"matches"`
}

// Report is the aggregated outcome of a scan.
type Report struct {
	TotalScanned     int      `json:"totalScanned"`
	TotalMatches     int      `json:"totalMatches"`
	FilesWithMatches int      `json:"filesWithMatches"`
	Results          []Result `json:"results"`
}

// NewReport returns an empty report whose results serialize as [].
func NewReport() *Report {
	return &Report{Results: []Result{}}
}

// Add folds one scanned target into the counters. Targets without matches
// are counted but not listed.
func (r *Report) Add(t Target, matches []Match) *Result {
	r.TotalScanned++
	if len(matches) == 0 {
		return nil
	}
	r.TotalMatches += len(matches)
	r.FilesWithMatches++
	r.Results = append(r.Results, Result{
		File:       t.Path,
		PackageRef: t.Package,
		Matches:    matches,
	})
	return &r.Results[len(r.Results)-1]
}

// Valid checks the counter invariants.
func (r *Report) Valid() bool {
	return r.FilesWithMatches <= r.TotalScanned &&
		r.TotalMatches >= r.FilesWithMatches &&
		len(r.Results) == r.FilesWithMatches
}

// MaxSeverity returns the most severe severity across all matches.
func (r *Report) MaxSeverity() Severity {
	max := SeverityUnknown
	for _, res := range r.Results {
		for _, m := range res.Matches {
			if s := ParseSeverity(m.Severity()); s.Rank() > max.Rank() {
				max = s
			}
		}
	}
	return max
}

// CountAtLeast counts matches whose severity reaches threshold.
func (r *Report) CountAtLeast(threshold Severity) int {
	n := 0
	for _, res := range r.Results {
		for _, m := range res.Matches {
			if ParseSeverity(m.Severity()).AtLeast(threshold) {
				n++
			}
		}
	}
	return n
}
