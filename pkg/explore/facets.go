package explore

import (
	"sort"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// facetID identifies a facet category.
type facetID int

const (
	facetSeverity facetID = iota
	facetRule
	facetNamespace
	facetPackage
	facetTriage
)

// facetDef defines a facet category.
type facetDef struct {
	ID    facetID
	Label string
}

var facetDefs = []facetDef{
	{facetSeverity, "Severity"},
	{facetRule, "Rule"},
	{facetNamespace, "Namespace"},
	{facetPackage, "Package"},
	{facetTriage, "Triage"},
}

// noValue stands in for an unset package or triage status.
const noValue = "-"

// facetValue is a single selectable value within a facet.
type facetValue struct {
	FacetID  facetID
	Value    string
	Count    int
	Selected bool
}

// facetState holds the complete filter state.
type facetState struct {
	Values map[facetID][]*facetValue
}

func newFacetState() *facetState {
	return &facetState{
		Values: make(map[facetID][]*facetValue),
	}
}

// facetValuesOf lists the values a result contributes to a facet.
func facetValuesOf(id facetID, r *resultRow) []string {
	switch id {
	case facetSeverity:
		return []string{string(r.Severity)}
	case facetRule:
		return r.Rules
	case facetNamespace:
		return r.Namespaces
	case facetPackage:
		if r.Package == "" {
			return []string{noValue}
		}
		return []string{r.Package}
	case facetTriage:
		if r.AnnotationStatus == "" {
			return []string{noValue}
		}
		return []string{r.AnnotationStatus}
	default:
		return nil
	}
}

// buildFacets builds facet values from the loaded results.
func buildFacets(results []*resultRow) *facetState {
	fs := newFacetState()
	for _, def := range facetDefs {
		counts := make(map[string]int)
		for _, r := range results {
			for _, v := range facetValuesOf(def.ID, r) {
				counts[v]++
			}
		}
		fs.Values[def.ID] = mapToFacetValues(def.ID, counts)
	}
	return fs
}

func mapToFacetValues(id facetID, counts map[string]int) []*facetValue {
	values := make([]*facetValue, 0, len(counts))
	for v, c := range counts {
		values = append(values, &facetValue{FacetID: id, Value: v, Count: c})
	}
	sort.Slice(values, func(i, j int) bool {
		if id == facetSeverity {
			// Most severe first.
			return types.Severity(values[i].Value).Rank() > types.Severity(values[j].Value).Rank()
		}
		return values[i].Value < values[j].Value
	})
	return values
}

// selectedValues returns the set of selected values for a facet.
func (fs *facetState) selectedValues(id facetID) map[string]bool {
	selected := make(map[string]bool)
	for _, v := range fs.Values[id] {
		if v.Selected {
			selected[v.Value] = true
		}
	}
	return selected
}

// hasActiveFilters returns true if any facet has selections.
func (fs *facetState) hasActiveFilters() bool {
	for _, values := range fs.Values {
		for _, v := range values {
			if v.Selected {
				return true
			}
		}
	}
	return false
}

// resetAll deselects all facet values.
func (fs *facetState) resetAll() {
	for _, values := range fs.Values {
		for _, v := range values {
			v.Selected = false
		}
	}
}

// matchesResult returns true if a result passes all active filters.
// Within a facet: OR (union). Across facets: AND (intersection).
func (fs *facetState) matchesResult(r *resultRow) bool {
	for _, def := range facetDefs {
		selected := fs.selectedValues(def.ID)
		if len(selected) == 0 {
			continue
		}
		found := false
		for _, v := range facetValuesOf(def.ID, r) {
			if selected[v] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// updateCounts recounts facet values over the results passing the filters.
// Triage values that appeared since the facets were built are added.
func (fs *facetState) updateCounts(results []*resultRow) {
	for _, values := range fs.Values {
		for _, v := range values {
			v.Count = 0
		}
	}

	for _, r := range results {
		if !fs.matchesResult(r) {
			continue
		}
		for _, def := range facetDefs {
			for _, val := range facetValuesOf(def.ID, r) {
				fv := fs.find(def.ID, val)
				if fv == nil {
					fv = &facetValue{FacetID: def.ID, Value: val}
					fs.Values[def.ID] = append(fs.Values[def.ID], fv)
				}
				fv.Count++
			}
		}
	}
}

func (fs *facetState) find(id facetID, value string) *facetValue {
	for _, v := range fs.Values[id] {
		if v.Value == value {
			return v
		}
	}
	return nil
}

// resultRow is the view model of one matched target.
type resultRow struct {
	File       string
	SourcePath string // on-disk path, empty when unknown
	Package    string
	Version    string
	SHA256     string
	Rules      []string
	Namespaces []string
	Severity   types.Severity // highest across matches
	MatchCount int

	AnnotationStatus string // "accept", "reject", or ""
	Comment          string
	Matches          []*matchRow
}

// matchRow is the view model of one rule hit.
type matchRow struct {
	Key         string
	Rule        string
	Namespace   string
	Severity    types.Severity
	Description string
	Category    string
	Tags        []string
	Meta        map[string]any
	Strings     []types.MatchString

	AnnotationStatus string
	Comment          string
}
