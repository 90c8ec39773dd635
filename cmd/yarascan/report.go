package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/praetorian-inc/yarascan/pkg/output"
	"github.com/praetorian-inc/yarascan/pkg/report"
	"github.com/praetorian-inc/yarascan/pkg/store"
)

var (
	reportDB     string
	reportScanID string
	reportList   bool
	reportFormat string
	reportOutput string
	reportColor  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show a stored scan",
	Long: `Read a scan from a results database written by "scan --db" and render it
again. The most recent scan is used unless --scan-id is given.`,
	RunE: runReport,
}

func init() {
	addReportFlags(reportCmd.Flags())
}

func addReportFlags(f *pflag.FlagSet) {
	f.StringVar(&reportDB, "db", "yarascan.db", "Results database path")
	f.StringVar(&reportScanID, "scan-id", "", "Scan to show (default: most recent)")
	f.BoolVar(&reportList, "list", false, "List stored scans instead of showing one")
	f.StringVar(&reportFormat, "format", report.FormatHuman, "Output format: human, json, sarif")
	f.StringVarP(&reportOutput, "output", "o", "", "Write json/sarif output to a file, s3:// or azblob:// destination")
	f.StringVar(&reportColor, "color", report.ColorAuto, "Color output: auto, always, never")
}

func runReport(cmd *cobra.Command, args []string) error {
	// Check if it's :memory: (invalid for report)
	if reportDB == ":memory:" {
		return fmt.Errorf("cannot report from in-memory store")
	}
	if _, err := os.Stat(reportDB); err != nil {
		return fmt.Errorf("database not found: %s", reportDB)
	}

	s, err := store.New(store.Config{Path: reportDB})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	if reportList {
		return outputScanList(cmd, s)
	}

	var info *store.ScanInfo
	if reportScanID != "" {
		info, err = s.GetScan(reportScanID)
	} else {
		info, err = store.Latest(s)
	}
	if errors.Is(err, store.ErrNotFound) {
		if reportScanID != "" {
			return fmt.Errorf("scan %s not found in %s", reportScanID, reportDB)
		}
		return fmt.Errorf("no scans stored in %s", reportDB)
	}
	if err != nil {
		return fmt.Errorf("retrieving scan: %w", err)
	}

	r, err := s.GetReport(info.ID)
	if err != nil {
		return fmt.Errorf("retrieving results: %w", err)
	}

	switch reportFormat {
	case report.FormatHuman:
		colorOn, err := report.ColorEnabled(reportColor, os.Stdout)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Scan %s (%s: %s)\n", info.ID, info.Mode, info.Source)
		fmt.Fprintf(out, "Started: %s\n", info.StartedAt.Format(time.RFC3339))
		report.WriteHuman(out, r, report.NewStyles(colorOn))
		return nil
	case report.FormatJSON, report.FormatSARIF:
		var buf bytes.Buffer
		if err := report.Write(&buf, reportFormat, r, info.Rules, version); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w := output.NewWriter(cmd.OutOrStdout())
		w.S3 = s3Config(cfg)
		w.Azure = output.AzureConfig{ConnectionString: cfg.Azure.ConnectionString}
		dest, err := w.WriteTo(context.Background(), reportOutput, buf.Bytes(), contentType(reportFormat))
		if err != nil {
			return err
		}
		if dest.Kind != output.KindStdout {
			fmt.Fprintf(cmd.ErrOrStderr(), "Results written to: %s\n", dest.Raw)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", reportFormat)
	}
}

func outputScanList(cmd *cobra.Command, s store.Store) error {
	scans, err := s.ListScans()
	if err != nil {
		return fmt.Errorf("listing scans: %w", err)
	}
	if len(scans) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No scans stored.\n")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "ID\tStarted\tMode\tSource\tScanned\tWith matches\tMatches\n")
	for _, sc := range scans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			sc.ID, sc.StartedAt.Format(time.RFC3339), sc.Mode, sc.Source,
			sc.TotalScanned, sc.FilesWithMatches, sc.TotalMatches)
	}
	return nil
}
