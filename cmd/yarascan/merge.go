package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/yarascan/pkg/store"
)

var (
	mergeOutput string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source1.db> <source2.db> [source3.db...]",
	Short: "Merge multiple results databases",
	Long: `Merge multiple results databases into a single output database.

This is useful for combining scans run on separate CI jobs or shards.
Scans are identified by ID; a scan already present in the output is
skipped.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "merged.db", "Output database path")
}

func runMerge(cmd *cobra.Command, args []string) error {
	stats, err := store.Merge(store.MergeConfig{
		SourcePaths: args,
		DestPath:    mergeOutput,
	})
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merge complete:\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  Sources processed: %d\n", stats.SourcesProcessed)
	fmt.Fprintf(cmd.OutOrStdout(), "  Scans merged: %d\n", stats.ScansMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "  Scans skipped: %d\n", stats.ScansSkipped)
	fmt.Fprintf(cmd.OutOrStdout(), "  Results merged: %d\n", stats.ResultsMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "  Annotations merged: %d\n", stats.AnnotationsMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", mergeOutput)

	return nil
}
