// Package report aggregates scan results and renders them.
package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Aggregator folds scanned targets into a Report and prints one line per
// match as results arrive.
type Aggregator struct {
	mu     sync.Mutex
	report *types.Report
	out    io.Writer
	styles *Styles

	// OnResult, when set, is called for every target with matches.
	OnResult func(t types.Target, r *types.Result)
}

// NewAggregator creates an aggregator printing match lines to out.
func NewAggregator(out io.Writer, styles *Styles) *Aggregator {
	if out == nil {
		out = io.Discard
	}
	if styles == nil {
		styles = PlainStyles()
	}
	return &Aggregator{
		report: types.NewReport(),
		out:    out,
		styles: styles,
	}
}

// Add records one scanned target.
func (a *Aggregator) Add(t types.Target, matches []types.Match) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := a.report.Add(t, matches)
	if res == nil {
		return
	}
	for _, m := range matches {
		fmt.Fprintf(a.out, "  [!] %s: %s (severity: %s)\n",
			a.styles.path.Sprint(t.DisplayPath()),
			a.styles.rule.Sprint(m.Rule),
			a.styles.Severity(m.Severity()))
	}
	if a.OnResult != nil {
		a.OnResult(t, res)
	}
}

// Report returns the aggregated report.
func (a *Aggregator) Report() *types.Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report
}
