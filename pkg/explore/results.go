package explore

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// sortField defines which column to sort by.
type sortField int

const (
	sortByFile sortField = iota
	sortByMatches
	sortBySeverity
	sortByPackage
	sortByStatus
	sortFieldCount // sentinel
)

var sortFieldNames = [sortFieldCount]string{
	"File", "Matches", "Severity", "Package", "Status",
}

// resultsPane is the top-right results table.
type resultsPane struct {
	rows    []*resultRow // filtered rows
	allRows []*resultRow
	cursor  int
	offset  int
	width   int
	height  int
	focused bool
	sortBy  sortField
	sortAsc bool
}

func newResultsPane(rows []*resultRow) resultsPane {
	rp := resultsPane{
		allRows: rows,
		rows:    rows,
		sortAsc: true,
	}
	rp.sort()
	return rp
}

func (rp *resultsPane) setFilteredRows(rows []*resultRow) {
	rp.rows = rows
	rp.sort()
	if rp.cursor >= len(rp.rows) {
		rp.cursor = max(0, len(rp.rows)-1)
	}
	rp.ensureVisible()
}

func (rp resultsPane) selectedResult() *resultRow {
	if rp.cursor < 0 || rp.cursor >= len(rp.rows) {
		return nil
	}
	return rp.rows[rp.cursor]
}

func (rp resultsPane) Update(msg tea.Msg) (resultsPane, tea.Cmd) {
	if !rp.focused {
		return rp, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return rp, nil
	}
	switch {
	case keyMatches(keyMsg, defaultKeys.Up):
		if rp.cursor > 0 {
			rp.cursor--
		}
	case keyMatches(keyMsg, defaultKeys.Down):
		if rp.cursor < len(rp.rows)-1 {
			rp.cursor++
		}
	case keyMatches(keyMsg, defaultKeys.Home):
		rp.cursor = 0
	case keyMatches(keyMsg, defaultKeys.End):
		rp.cursor = max(0, len(rp.rows)-1)
	case keyMatches(keyMsg, defaultKeys.PageDown):
		rp.cursor = max(0, min(rp.cursor+rp.visibleRows(), len(rp.rows)-1))
	case keyMatches(keyMsg, defaultKeys.PageUp):
		rp.cursor = max(rp.cursor-rp.visibleRows(), 0)
	case keyMatches(keyMsg, defaultKeys.SortNext):
		rp.sortBy = (rp.sortBy + 1) % sortFieldCount
		rp.sort()
	case keyMatches(keyMsg, defaultKeys.SortReverse):
		rp.sortAsc = !rp.sortAsc
		rp.sort()
	}
	rp.ensureVisible()
	return rp, nil
}

// sort orders the visible rows, breaking ties by file path.
func (rp *resultsPane) sort() {
	var by func(a, b *resultRow) int
	switch rp.sortBy {
	case sortByMatches:
		by = func(a, b *resultRow) int { return cmp.Compare(a.MatchCount, b.MatchCount) }
	case sortBySeverity:
		by = func(a, b *resultRow) int { return cmp.Compare(a.Severity.Rank(), b.Severity.Rank()) }
	case sortByPackage:
		by = func(a, b *resultRow) int { return cmp.Compare(a.Package, b.Package) }
	case sortByStatus:
		by = func(a, b *resultRow) int { return cmp.Compare(a.AnnotationStatus, b.AnnotationStatus) }
	default:
		by = func(a, b *resultRow) int { return 0 }
	}
	slices.SortStableFunc(rp.rows, func(a, b *resultRow) int {
		c := by(a, b)
		if c == 0 {
			c = cmp.Compare(a.File, b.File)
		}
		if !rp.sortAsc {
			c = -c
		}
		return c
	})
}

func (rp resultsPane) View() string {
	if rp.width <= 0 || rp.height <= 0 {
		return ""
	}

	contentWidth := rp.width - 4
	colMatches := 7
	colSeverity := 9
	colStatus := 7
	colPackage := min(24, contentWidth/5)
	colRules := min(30, contentWidth/4)
	colFile := max(10, contentWidth-colPackage-colRules-colMatches-colSeverity-colStatus-6)

	indicator := func(f sortField) string {
		if rp.sortBy != f {
			return ""
		}
		if rp.sortAsc {
			return " ^"
		}
		return " v"
	}

	var b strings.Builder
	header := " " + strings.Join([]string{
		padRight(truncateString("File"+indicator(sortByFile), colFile), colFile),
		padRight(truncateString("Package"+indicator(sortByPackage), colPackage), colPackage),
		padRight("Rules", colRules),
		padRight("Hits"+indicator(sortByMatches), colMatches),
		padRight("Sev"+indicator(sortBySeverity), colSeverity),
		"Status" + indicator(sortByStatus),
	}, " ")
	b.WriteString(headerRowStyle.Width(contentWidth).Render(truncateString(header, contentWidth)))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", max(0, contentWidth)))
	b.WriteString("\n")

	visibleEnd := min(rp.offset+rp.visibleRows(), len(rp.rows))
	for i := rp.offset; i < visibleEnd; i++ {
		row := rp.rows[i]

		pkg := row.Package
		if pkg != "" && row.Version != "" {
			pkg += "@" + row.Version
		}
		line := " " + strings.Join([]string{
			padRight(truncateString(row.File, colFile), colFile),
			padRight(truncateString(pkg, colPackage), colPackage),
			padRight(truncateString(strings.Join(row.Rules, ","), colRules), colRules),
			padRight(fmt.Sprintf("%d", row.MatchCount), colMatches),
			padRight(renderSeverity(row.Severity), colSeverity),
			renderAnnotationStatus(row.AnnotationStatus),
		}, " ")

		if i == rp.cursor && rp.focused {
			line = selectedRowStyle.Width(contentWidth).Render(stripAnsi(line))
		}
		b.WriteString(padRight(line, contentWidth))
		if i < visibleEnd-1 {
			b.WriteString("\n")
		}
	}
	fillRows(&b, visibleEnd-rp.offset, rp.visibleRows(), contentWidth)

	title := fmt.Sprintf(" Results (%d/%d) [sort: %s] ", len(rp.rows), len(rp.allRows), sortFieldNames[rp.sortBy])
	return framePane(title, b.String(), rp.width, rp.height, rp.focused)
}

func (rp resultsPane) visibleRows() int {
	return max(1, rp.height-6) // title + border + header + separator
}

func (rp *resultsPane) ensureVisible() {
	if rp.cursor < rp.offset {
		rp.offset = rp.cursor
	}
	if rp.cursor >= rp.offset+rp.visibleRows() {
		rp.offset = rp.cursor - rp.visibleRows() + 1
	}
}

func (rp *resultsPane) setSize(w, h int) {
	rp.width = w
	rp.height = h
}
