package explore

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// filterPane is the left-side facet tree.
type filterPane struct {
	facets    *facetState
	collapsed map[facetID]bool
	cursor    int          // flat index across all items
	items     []filterItem // flattened tree
	width     int
	height    int
	offset    int
	focused   bool
}

type filterItemKind int

const (
	filterItemFacet filterItemKind = iota
	filterItemValue
)

type filterItem struct {
	Kind     filterItemKind
	Label    string
	FacetID  facetID
	ValueIdx int // index into facets.Values[FacetID]
}

func newFilterPane(facets *facetState) filterPane {
	fp := filterPane{
		facets:    facets,
		collapsed: make(map[facetID]bool),
	}
	fp.rebuildItems()
	return fp
}

// rebuildItems flattens the facet tree, skipping collapsed facets' values.
func (fp *filterPane) rebuildItems() {
	fp.items = nil
	for _, def := range facetDefs {
		values := fp.facets.Values[def.ID]
		if len(values) == 0 {
			continue
		}
		fp.items = append(fp.items, filterItem{Kind: filterItemFacet, Label: def.Label, FacetID: def.ID})
		if fp.collapsed[def.ID] {
			continue
		}
		for i, v := range values {
			fp.items = append(fp.items, filterItem{
				Kind:     filterItemValue,
				Label:    v.Value,
				FacetID:  def.ID,
				ValueIdx: i,
			})
		}
	}
	if fp.cursor >= len(fp.items) {
		fp.cursor = max(0, len(fp.items)-1)
	}
}

func (fp filterPane) Update(msg tea.Msg) (filterPane, tea.Cmd) {
	if !fp.focused {
		return fp, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return fp, nil
	}
	switch {
	case keyMatches(keyMsg, defaultKeys.Up):
		if fp.cursor > 0 {
			fp.cursor--
		}
	case keyMatches(keyMsg, defaultKeys.Down):
		if fp.cursor < len(fp.items)-1 {
			fp.cursor++
		}
	case keyMatches(keyMsg, defaultKeys.Home):
		fp.cursor = 0
	case keyMatches(keyMsg, defaultKeys.End):
		fp.cursor = max(0, len(fp.items)-1)
	case keyMatches(keyMsg, defaultKeys.PageDown):
		fp.cursor = max(0, min(fp.cursor+fp.visibleRows(), len(fp.items)-1))
	case keyMatches(keyMsg, defaultKeys.PageUp):
		fp.cursor = max(fp.cursor-fp.visibleRows(), 0)
	case keyMatches(keyMsg, defaultKeys.ToggleFilter):
		fp.toggleCurrent()
	case keyMatches(keyMsg, defaultKeys.ResetFilter):
		fp.facets.resetAll()
	}
	fp.ensureVisible()
	return fp, nil
}

// toggleCurrent collapses/expands a facet or selects/deselects a value.
func (fp *filterPane) toggleCurrent() {
	if fp.cursor < 0 || fp.cursor >= len(fp.items) {
		return
	}
	item := fp.items[fp.cursor]
	switch item.Kind {
	case filterItemFacet:
		fp.collapsed[item.FacetID] = !fp.collapsed[item.FacetID]
		fp.rebuildItems()
		for i, it := range fp.items {
			if it.Kind == filterItemFacet && it.FacetID == item.FacetID {
				fp.cursor = i
				break
			}
		}
	case filterItemValue:
		values := fp.facets.Values[item.FacetID]
		if item.ValueIdx < len(values) {
			values[item.ValueIdx].Selected = !values[item.ValueIdx].Selected
		}
	}
}

func (fp filterPane) View() string {
	if fp.width <= 0 || fp.height <= 0 {
		return ""
	}

	inner := fp.width - 2
	var b strings.Builder
	visibleEnd := min(fp.offset+fp.visibleRows(), len(fp.items))

	for i := fp.offset; i < visibleEnd; i++ {
		item := fp.items[i]

		var line string
		switch item.Kind {
		case filterItemFacet:
			arrow := "▾"
			if fp.collapsed[item.FacetID] {
				arrow = "▸"
			}
			line = facetLabelStyle.Render(fmt.Sprintf(" %s %s", arrow, item.Label))
		case filterItemValue:
			v := fp.facets.Values[item.FacetID][item.ValueIdx]
			label := truncateString(item.Label, inner-12)
			count := facetCountStyle.Render(fmt.Sprintf("(%d)", v.Count))
			if v.Selected {
				line = fmt.Sprintf("   %s %s %s", facetSelectedStyle.Render("+"), facetSelectedStyle.Render(label), count)
			} else {
				line = fmt.Sprintf("     %s %s", label, count)
			}
		}

		if i == fp.cursor && fp.focused {
			line = selectedRowStyle.Width(inner).Render(stripAnsi(line))
		}
		b.WriteString(padRight(line, inner))
		if i < visibleEnd-1 {
			b.WriteString("\n")
		}
	}
	fillRows(&b, visibleEnd-fp.offset, fp.visibleRows(), inner)

	return framePane(" Filters ", b.String(), fp.width, fp.height, fp.focused)
}

func (fp filterPane) visibleRows() int {
	return max(1, fp.height-4)
}

func (fp *filterPane) ensureVisible() {
	if fp.cursor < fp.offset {
		fp.offset = fp.cursor
	}
	if fp.cursor >= fp.offset+fp.visibleRows() {
		fp.offset = fp.cursor - fp.visibleRows() + 1
	}
}

func (fp *filterPane) setSize(w, h int) {
	fp.width = w
	fp.height = h
}

// Helper functions

func keyMatches(msg tea.KeyMsg, binding key.Binding) bool {
	return key.Matches(msg, binding)
}

// framePane draws a titled, bordered pane.
func framePane(title, body string, width, height int, focused bool) string {
	border := inactiveBorderStyle
	if focused {
		border = activeBorderStyle
	}
	content := border.
		Width(width - 2).
		Height(height - 3).
		Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), content)
}

// fillRows pads the pane body with blank lines from row to total.
func fillRows(b *strings.Builder, row, total, width int) {
	for i := row; i < total; i++ {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.Repeat(" ", max(0, width)))
	}
}

func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, width int) string {
	visLen := lipgloss.Width(s)
	if visLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visLen)
}

// stripAnsi removes ANSI escape sequences for re-styling.
func stripAnsi(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		if r == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
				inEscape = false
			}
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}
