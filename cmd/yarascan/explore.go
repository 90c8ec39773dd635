package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/praetorian-inc/yarascan/pkg/explore"
)

var (
	exploreDB     string
	exploreScanID string
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Interactively explore a stored scan",
	Long: `Launch an interactive TUI to browse a scan from a results database.

Features:
  - Three-pane layout: filters, results table, match details
  - Faceted search by severity, rule, namespace, package and triage status
  - Accept/reject annotations with comments, saved to the database
  - Vi-style navigation (hjkl, Ctrl-f/b, g/G)
  - Opens matched files in $PAGER at the first matched string
  - Sortable results table`,
	RunE: runExplore,
}

func init() {
	addExploreFlags(exploreCmd.Flags())
}

func addExploreFlags(f *pflag.FlagSet) {
	f.StringVar(&exploreDB, "db", "yarascan.db", "Results database path")
	f.StringVar(&exploreScanID, "scan-id", "", "Scan to explore (default: most recent)")
}

func runExplore(cmd *cobra.Command, args []string) error {
	model, err := explore.New(exploreDB, exploreScanID)
	if err != nil {
		return fmt.Errorf("loading scan: %w", err)
	}
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running explore TUI: %w", err)
	}

	return nil
}
