package explore

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// detailsPane shows the selected result and one of its matches.
type detailsPane struct {
	result      *resultRow
	matchCursor int
	width       int
	height      int
	offset      int // scroll offset for content
	focused     bool
}

func (dp *detailsPane) setResult(r *resultRow) {
	if dp.result == r {
		return
	}
	dp.result = r
	dp.matchCursor = 0
	dp.offset = 0
}

func (dp detailsPane) selectedMatch() *matchRow {
	if dp.result == nil || dp.matchCursor < 0 || dp.matchCursor >= len(dp.result.Matches) {
		return nil
	}
	return dp.result.Matches[dp.matchCursor]
}

func (dp detailsPane) Update(msg tea.Msg) (detailsPane, tea.Cmd) {
	if !dp.focused {
		return dp, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return dp, nil
	}
	switch {
	case keyMatches(keyMsg, defaultKeys.Up):
		if dp.offset > 0 {
			dp.offset--
		}
	case keyMatches(keyMsg, defaultKeys.Down):
		dp.offset++
	case keyMatches(keyMsg, defaultKeys.Left):
		dp.prevMatch()
	case keyMatches(keyMsg, defaultKeys.Right):
		dp.nextMatch()
	case keyMatches(keyMsg, defaultKeys.Home):
		dp.offset = 0
	case keyMatches(keyMsg, defaultKeys.PageDown):
		dp.offset += dp.visibleRows()
	case keyMatches(keyMsg, defaultKeys.PageUp):
		dp.offset = max(0, dp.offset-dp.visibleRows())
	}
	return dp, nil
}

func (dp *detailsPane) prevMatch() {
	if dp.matchCursor > 0 {
		dp.matchCursor--
		dp.offset = 0
	}
}

// nextMatch advances the match cursor and reports whether it moved.
func (dp *detailsPane) nextMatch() bool {
	if dp.result == nil || dp.matchCursor >= len(dp.result.Matches)-1 {
		return false
	}
	dp.matchCursor++
	dp.offset = 0
	return true
}

func (dp detailsPane) View() string {
	if dp.width <= 0 || dp.height <= 0 {
		return ""
	}

	contentWidth := dp.width - 4
	lines := dp.lines(contentWidth)

	offset := min(dp.offset, max(0, len(lines)-1))
	visible := lines[offset:]
	if len(visible) > dp.visibleRows() {
		visible = visible[:dp.visibleRows()]
	}

	var b strings.Builder
	for i, line := range visible {
		b.WriteString(padRight(line, contentWidth))
		if i < len(visible)-1 {
			b.WriteString("\n")
		}
	}
	fillRows(&b, len(visible), dp.visibleRows(), contentWidth)

	return framePane(" Details ", b.String(), dp.width, dp.height, dp.focused)
}

func (dp detailsPane) lines(width int) []string {
	r := dp.result
	if r == nil {
		return []string{"  No result selected"}
	}

	valueWidth := max(10, width-14)
	lines := []string{field("File:", truncateString(r.File, valueWidth))}
	if r.Package != "" {
		lines = append(lines, field("Package:", truncateString(r.Package+"@"+r.Version, valueWidth)))
	}
	if r.SHA256 != "" {
		lines = append(lines, field("SHA256:", truncateString(r.SHA256, valueWidth)))
	}
	lines = append(lines, fmt.Sprintf("  %s %s", fieldLabelStyle.Render("Severity:"), renderSeverity(r.Severity)))
	if r.AnnotationStatus != "" {
		lines = append(lines, fmt.Sprintf("  %s %s", fieldLabelStyle.Render("Status:"), renderAnnotationStatus(r.AnnotationStatus)))
	}
	if r.Comment != "" {
		lines = append(lines, field("Comment:", r.Comment))
	}
	lines = append(lines, "")

	if len(r.Matches) == 0 {
		return append(lines, "  No matches")
	}
	lines = append(lines,
		"  "+headerRowStyle.Render(fmt.Sprintf("Match %d/%d (h/l to navigate)", dp.matchCursor+1, len(r.Matches))),
		"  "+strings.Repeat("─", max(0, min(40, width-4))),
	)
	if m := dp.selectedMatch(); m != nil {
		lines = append(lines, renderMatchDetails(m, valueWidth)...)
	}
	return lines
}

func field(label, value string) string {
	return fmt.Sprintf("  %s %s", fieldLabelStyle.Render(label), fieldValueStyle.Render(value))
}

func renderMatchDetails(m *matchRow, valueWidth int) []string {
	lines := []string{
		field("Rule:", truncateString(m.Namespace+"/"+m.Rule, valueWidth)),
		fmt.Sprintf("  %s %s", fieldLabelStyle.Render("Severity:"), renderSeverity(m.Severity)),
	}
	if m.Description != "" {
		lines = append(lines, field("Description:", truncateString(m.Description, valueWidth)))
	}
	if m.Category != "" {
		lines = append(lines, field("Category:", m.Category))
	}
	if len(m.Tags) > 0 {
		lines = append(lines, field("Tags:", strings.Join(m.Tags, ", ")))
	}
	if m.AnnotationStatus != "" {
		lines = append(lines, fmt.Sprintf("  %s %s", fieldLabelStyle.Render("Status:"), renderAnnotationStatus(m.AnnotationStatus)))
	}
	if m.Comment != "" {
		lines = append(lines, field("Comment:", m.Comment))
	}

	if len(m.Meta) > 0 {
		lines = append(lines, "", "  "+fieldLabelStyle.Render("Meta:"))
		keys := make([]string, 0, len(m.Meta))
		for k := range m.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("    %s %s",
				fieldLabelStyle.Render(k+":"),
				truncateString(fmt.Sprint(m.Meta[k]), valueWidth)))
		}
	}

	lines = append(lines, "", "  "+fieldLabelStyle.Render("Strings:"))
	if len(m.Strings) == 0 {
		return append(lines, "    (condition only)")
	}
	for _, s := range m.Strings {
		lines = append(lines, fmt.Sprintf("    %s %s",
			stringIDStyle.Render(s.Identifier),
			stringOffsetStyle.Render(fmt.Sprintf("@ 0x%x", s.Offset))))
	}
	return lines
}

func (dp detailsPane) visibleRows() int {
	return max(1, dp.height-4)
}

func (dp *detailsPane) setSize(w, h int) {
	dp.width = w
	dp.height = h
}
