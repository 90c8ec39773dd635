// Package explore is an interactive terminal browser for scans stored in a
// results database, with triage annotations written back to the store.
package explore

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/praetorian-inc/yarascan/pkg/store"
)

// focusedPane tracks which pane has keyboard focus.
type focusedPane int

const (
	paneFilters focusedPane = iota
	paneResults
	paneDetails
)

// overlay tracks which modal overlay is active.
type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlaySource
	overlayComment
)

// pagerFinishedMsg is sent when an external pager process exits.
type pagerFinishedMsg struct{ err error }

// Model is the root Bubble Tea model for the explore TUI.
type Model struct {
	data    *exploreData
	filters filterPane
	results resultsPane
	details detailsPane

	focus         focusedPane
	activeOverlay overlay
	showFilters   bool

	helpOffset int

	sourceContent string
	sourceOffset  int

	commentInput  string
	commentOnPane focusedPane

	width  int
	height int
	err    error
}

// New loads a scan from the database at dbPath. An empty scanID opens the
// most recent scan.
func New(dbPath, scanID string) (Model, error) {
	data, err := loadData(dbPath, scanID)
	if err != nil {
		return Model{}, err
	}
	return newModel(data), nil
}

// NewFromStore browses a scan held by an already open store. Closing the
// model closes s.
func NewFromStore(s store.Store, scanID string) (Model, error) {
	data, err := loadFromStore(s, scanID)
	if err != nil {
		return Model{}, err
	}
	return newModel(data), nil
}

func newModel(data *exploreData) Model {
	m := Model{
		data:        data,
		filters:     newFilterPane(buildFacets(data.results)),
		results:     newResultsPane(data.results),
		showFilters: true,
	}
	m.setFocus(paneResults)
	m.details.setResult(m.results.selectedResult())
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.SetWindowTitle("yarascan explore")
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case pagerFinishedMsg:
		m.err = msg.err
		return m, nil

	case tea.MouseMsg:
		if m.activeOverlay != overlayNone {
			return m, nil
		}
		if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
			return m, nil
		}
		m.handleMouseClick(msg.X, msg.Y)
		return m, nil

	case tea.KeyMsg:
		if m.activeOverlay != overlayNone {
			return m.updateOverlay(msg)
		}

		switch {
		case keyMatches(msg, defaultKeys.ForceQuit), keyMatches(msg, defaultKeys.Quit):
			return m, tea.Quit
		case keyMatches(msg, defaultKeys.ToggleHelp):
			m.activeOverlay = overlayHelp
			m.helpOffset = 0
			return m, nil
		case keyMatches(msg, defaultKeys.ToggleFilters):
			m.showFilters = !m.showFilters
			if !m.showFilters && m.focus == paneFilters {
				m.setFocus(paneResults)
			}
			return m, nil
		case keyMatches(msg, defaultKeys.FocusFilters):
			if m.showFilters {
				m.setFocus(paneFilters)
			}
			return m, nil
		case keyMatches(msg, defaultKeys.FocusResults):
			m.setFocus(paneResults)
			return m, nil
		case keyMatches(msg, defaultKeys.FocusDetails):
			m.setFocus(paneDetails)
			return m, nil
		}

		if m.focus == paneResults || m.focus == paneDetails {
			switch {
			case keyMatches(msg, defaultKeys.Accept):
				m.setAnnotation(store.StatusAccept)
				return m, nil
			case keyMatches(msg, defaultKeys.Reject):
				m.setAnnotation(store.StatusReject)
				return m, nil
			case keyMatches(msg, defaultKeys.AcceptNext):
				m.setAnnotation(store.StatusAccept)
				m.moveNext()
				return m, nil
			case keyMatches(msg, defaultKeys.RejectNext):
				m.setAnnotation(store.StatusReject)
				m.moveNext()
				return m, nil
			case keyMatches(msg, defaultKeys.Comment):
				m.startComment()
				return m, nil
			case keyMatches(msg, defaultKeys.OpenSource):
				return m, m.openSource()
			}
		}

		var cmd tea.Cmd
		switch m.focus {
		case paneFilters:
			m.filters, cmd = m.filters.Update(msg)
			m.applyFilters()
		case paneResults:
			m.results, cmd = m.results.Update(msg)
			m.details.setResult(m.results.selectedResult())
		case paneDetails:
			m.details, cmd = m.details.Update(msg)
		}
		return m, cmd
	}

	return m, nil
}

func (m *Model) updateOverlay(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.activeOverlay {
	case overlayHelp:
		m.helpOffset = scrollOverlay(msg, m.helpOffset, m.height/2)
		if keyMatches(msg, defaultKeys.Quit) || keyMatches(msg, defaultKeys.ForceQuit) || keyMatches(msg, defaultKeys.ToggleHelp) {
			m.activeOverlay = overlayNone
		}
	case overlaySource:
		m.sourceOffset = scrollOverlay(msg, m.sourceOffset, m.height/2)
		if keyMatches(msg, defaultKeys.Quit) || keyMatches(msg, defaultKeys.ForceQuit) || keyMatches(msg, defaultKeys.OpenSource) {
			m.activeOverlay = overlayNone
		}
	case overlayComment:
		switch msg.Type {
		case tea.KeyEnter:
			m.saveComment()
			m.activeOverlay = overlayNone
		case tea.KeyEsc, tea.KeyCtrlC:
			m.activeOverlay = overlayNone
		case tea.KeyBackspace:
			if r := []rune(m.commentInput); len(r) > 0 {
				m.commentInput = string(r[:len(r)-1])
			}
		case tea.KeySpace:
			m.commentInput += " "
		case tea.KeyRunes:
			m.commentInput += string(msg.Runes)
		}
	}
	return *m, nil
}

func scrollOverlay(msg tea.KeyMsg, offset, page int) int {
	switch {
	case keyMatches(msg, defaultKeys.Down):
		return offset + 1
	case keyMatches(msg, defaultKeys.Up):
		return max(0, offset-1)
	case keyMatches(msg, defaultKeys.PageDown):
		return offset + page
	case keyMatches(msg, defaultKeys.PageUp):
		return max(0, offset-page)
	}
	return offset
}

// layout returns the filter pane width and the results pane height.
func (m Model) layout() (filtersWidth, resultsHeight, contentHeight int) {
	contentHeight = m.height - 2 // status bar + padding
	if m.showFilters {
		filtersWidth = min(m.width*30/100, 50)
	}
	resultsHeight = contentHeight * 40 / 100
	return filtersWidth, resultsHeight, contentHeight
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.activeOverlay != overlayNone {
		return m.renderOverlay()
	}

	filtersWidth, resultsHeight, contentHeight := m.layout()
	dataWidth := m.width - filtersWidth

	m.results.setSize(dataWidth, resultsHeight)
	m.details.setSize(dataWidth, contentHeight-resultsHeight)
	main := lipgloss.JoinVertical(lipgloss.Left, m.results.View(), m.details.View())

	if m.showFilters {
		m.filters.setSize(filtersWidth, contentHeight)
		main = lipgloss.JoinHorizontal(lipgloss.Top, m.filters.View(), main)
	}

	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) renderStatusBar() string {
	status := fmt.Sprintf(" scan %s | %d results | %d shown", shortID(m.data.scan.ID), len(m.data.results), len(m.results.rows))
	if m.err != nil {
		status += " | error: " + m.err.Error()
	}
	left := statusBarStyle.Render(status)

	var hints []string
	for _, h := range [][2]string{
		{"j/k", "nav"},
		{"f/d", "focus"},
		{"a/r", "accept/reject"},
		{"c", "comment"},
		{"s", "sort"},
		{"o", "open"},
		{"F7", "filters"},
		{"?", "help"},
	} {
		hints = append(hints, helpKeyStyle.Render(h[0])+":"+helpDescStyle.Render(h[1]))
	}
	right := strings.Join(hints, "  ")

	gap := max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + strings.Repeat(" ", gap) + right
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m Model) renderOverlay() string {
	overlayWidth := m.width * 80 / 100
	overlayHeight := m.height * 80 / 100

	var title, content string
	switch m.activeOverlay {
	case overlayHelp:
		title = " Help (q to close) "
		content = scrollWindow(helpText, m.helpOffset, overlayHeight-4)
	case overlaySource:
		title = " Strings (q to close) "
		content = scrollWindow(m.sourceContent, m.sourceOffset, overlayHeight-4)
	case overlayComment:
		title = " Comment (enter to save, esc to cancel) "
		overlayWidth = min(60, m.width-4)
		overlayHeight = 5
		content = fmt.Sprintf("\n  > %s_\n", m.commentInput)
	}

	box := modalStyle.
		Width(overlayWidth - 4).
		Height(overlayHeight - 2).
		Render(content)
	view := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), box)

	hPad := (m.width - lipgloss.Width(view)) / 2
	vPad := (m.height - lipgloss.Height(view)) / 2
	return strings.Repeat("\n", max(0, vPad)) +
		lipgloss.NewStyle().PaddingLeft(max(0, hPad)).Render(view)
}

func scrollWindow(text string, offset, height int) string {
	lines := strings.Split(text, "\n")
	offset = min(offset, max(0, len(lines)-1))
	end := min(offset+max(1, height), len(lines))
	return strings.Join(lines[offset:end], "\n")
}

func (m *Model) setFocus(p focusedPane) {
	m.filters.focused = p == paneFilters
	m.results.focused = p == paneResults
	m.details.focused = p == paneDetails
	m.focus = p
}

func (m *Model) handleMouseClick(x, y int) {
	filtersWidth, resultsHeight, contentHeight := m.layout()
	if y >= contentHeight {
		return
	}

	switch {
	case x < filtersWidth:
		m.setFocus(paneFilters)
		if idx := y - 2 + m.filters.offset; y >= 2 && idx < len(m.filters.items) {
			m.filters.cursor = idx
			m.filters.toggleCurrent()
			m.applyFilters()
		}
	case y < resultsHeight:
		m.setFocus(paneResults)
		if idx := y - 4 + m.results.offset; y >= 4 && idx < len(m.results.rows) {
			m.results.cursor = idx
			m.details.setResult(m.results.selectedResult())
		}
	default:
		m.setFocus(paneDetails)
	}
}

func (m *Model) applyFilters() {
	facets := m.filters.facets
	rows := m.data.results
	if facets.hasActiveFilters() {
		rows = nil
		for _, r := range m.data.results {
			if facets.matchesResult(r) {
				rows = append(rows, r)
			}
		}
	}
	m.results.setFilteredRows(rows)
	facets.updateCounts(m.data.results)
	m.filters.rebuildItems()
	m.details.setResult(m.results.selectedResult())
}

// setAnnotation toggles status on the focused result or match.
func (m *Model) setAnnotation(status string) {
	switch m.focus {
	case paneResults:
		r := m.results.selectedResult()
		if r == nil {
			return
		}
		r.AnnotationStatus = toggleStatus(r.AnnotationStatus, status)
		m.err = m.data.setResultAnnotation(r)
		m.filters.facets.updateCounts(m.data.results)
		m.filters.rebuildItems()
	case paneDetails:
		match := m.details.selectedMatch()
		if match == nil {
			return
		}
		match.AnnotationStatus = toggleStatus(match.AnnotationStatus, status)
		m.err = m.data.setMatchAnnotation(match)
	}
}

func toggleStatus(current, status string) string {
	if current == status {
		return ""
	}
	return status
}

func (m *Model) moveNext() {
	switch m.focus {
	case paneResults:
		if m.results.cursor < len(m.results.rows)-1 {
			m.results.cursor++
			m.results.ensureVisible()
			m.details.setResult(m.results.selectedResult())
		}
	case paneDetails:
		m.details.nextMatch()
	}
}

func (m *Model) startComment() {
	switch m.focus {
	case paneResults:
		r := m.results.selectedResult()
		if r == nil {
			return
		}
		m.commentInput = r.Comment
	case paneDetails:
		match := m.details.selectedMatch()
		if match == nil {
			return
		}
		m.commentInput = match.Comment
	default:
		return
	}
	m.commentOnPane = m.focus
	m.activeOverlay = overlayComment
}

func (m *Model) saveComment() {
	switch m.commentOnPane {
	case paneResults:
		if r := m.results.selectedResult(); r != nil {
			r.Comment = m.commentInput
			m.err = m.data.setResultAnnotation(r)
		}
	case paneDetails:
		if match := m.details.selectedMatch(); match != nil {
			match.Comment = m.commentInput
			m.err = m.data.setMatchAnnotation(match)
		}
	}
}

// openSource pages the on-disk file at the first matched string. Results
// without a file on disk show their string offsets instead.
func (m *Model) openSource() tea.Cmd {
	r := m.results.selectedResult()
	if r == nil {
		return nil
	}
	match := m.details.selectedMatch()

	if r.SourcePath != "" {
		if data, err := os.ReadFile(r.SourcePath); err == nil {
			line := 0
			if match != nil && len(match.Strings) > 0 {
				line = lineAtOffset(data, match.Strings[0].Offset)
			}
			return openInPager(r.SourcePath, line)
		}
	}

	m.sourceContent = renderStringsOverlay(r, match)
	m.sourceOffset = 0
	m.activeOverlay = overlaySource
	return nil
}

func renderStringsOverlay(r *resultRow, match *matchRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", r.File)
	if match == nil {
		b.WriteString("No matches")
		return b.String()
	}
	fmt.Fprintf(&b, "%s/%s\n", match.Namespace, match.Rule)
	if len(match.Strings) == 0 {
		b.WriteString("  (condition only)")
	}
	for _, s := range match.Strings {
		fmt.Fprintf(&b, "  %s @ 0x%x (%d)\n", s.Identifier, s.Offset, s.Offset)
	}
	return b.String()
}

// lineAtOffset returns the 1-based line containing byte offset.
func lineAtOffset(data []byte, offset uint64) int {
	if offset > uint64(len(data)) {
		offset = uint64(len(data))
	}
	return bytes.Count(data[:offset], []byte("\n")) + 1
}

func openInPager(filePath string, line int) tea.Cmd {
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}

	var args []string
	if line > 0 && pager == "less" {
		args = append(args, fmt.Sprintf("+%d", line))
	}
	args = append(args, filePath)

	c := exec.Command(pager, args...)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		return pagerFinishedMsg{err: err}
	})
}

// Close releases the underlying store.
func (m *Model) Close() error {
	if m.data != nil {
		return m.data.close()
	}
	return nil
}

const helpText = `yarascan explore - interactive scan browser

NAVIGATION
  j/k or Up/Down    Move cursor up/down
  h/l or Left/Right Previous/next match (details)
  Ctrl+f/Ctrl+b     Page down/up
  g/G               Jump to top/bottom

FOCUS
  F1 or 1           Focus filters pane
  f or 2            Focus results pane
  d or 3            Focus details pane
  F7                Toggle filters pane visibility

FILTERS
  x or Space        Toggle filter value or collapse facet
  Ctrl+r            Reset all filters

TRIAGE
  a                 Toggle accept on result/match
  r                 Toggle reject on result/match
  A                 Accept and move to next
  R                 Reject and move to next
  c                 Add/edit comment

VIEWS
  s                 Cycle sort column
  S                 Reverse sort order
  o                 Open file in $PAGER at the first matched string
  ?                 Toggle this help screen

QUIT
  q or Esc          Quit
  Ctrl+c            Force quit
`
