package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/praetorian-inc/yarascan/pkg/annotate"
	"github.com/praetorian-inc/yarascan/pkg/config"
	"github.com/praetorian-inc/yarascan/pkg/engine"
	"github.com/praetorian-inc/yarascan/pkg/enum"
	"github.com/praetorian-inc/yarascan/pkg/output"
	"github.com/praetorian-inc/yarascan/pkg/report"
	"github.com/praetorian-inc/yarascan/pkg/rule"
	"github.com/praetorian-inc/yarascan/pkg/scanner"
	"github.com/praetorian-inc/yarascan/pkg/store"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Exit codes.
const (
	exitError  = 1
	exitFailOn = 2
)

var errNoRulesSpecified = errors.New("No YARA rules specified")

var (
	scanInput             string
	scanDir               string
	scanInclude           []string
	scanRules             []string
	scanOutput            string
	scanTimeout           int
	scanGitHubAnnotations bool
	scanBundledRules      bool
	scanNoBundledRules    bool
	scanFormat            string
	scanWorkers           int
	scanGit               bool
	scanGitRef            string
	scanExtractArchives   string
	scanSkipHidden        bool
	scanRespectGitignore  bool
	scanMaxFileSize       int64
	scanRulesInclude      string
	scanRulesExclude      string
	scanDB                string
	scanFailOn            string
	scanAnnotations       string
	scanColor             string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan files with YARA rules",
	Long: `Scan the files listed in a package manifest (--input) or found under a
directory (--dir) with YARA rules, then print a summary and write the JSON
or SARIF report to stdout or --output.

Bundled rules (the rules/ directory next to the executable) load first;
--rules files and directories follow and shadow bundled namespaces of the
same name.`,
	Example: `  yarascan scan --input binary-scan-results.json
  yarascan scan --dir ./node_modules --include "*.js" --include "*.mjs"
  yarascan scan --dir . --git --git-ref main --format sarif -o yara.sarif
  yarascan scan --input results.json -o s3://ci-reports/yara.json --github-annotations`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	addScanFlags(scanCmd.Flags())
}

func addScanFlags(f *pflag.FlagSet) {
	f.StringVarP(&scanInput, "input", "i", "", "Package manifest listing the files to scan (JSON or YAML)")
	f.StringVarP(&scanDir, "dir", "d", "", "Directory to scan directly (alternative to --input)")
	f.StringArrayVar(&scanInclude, "include", nil, "File pattern to include with --dir, e.g. \"*.js\" (repeatable)")
	f.StringArrayVarP(&scanRules, "rules", "r", nil, "YARA rules file or directory (repeatable)")
	f.StringVarP(&scanOutput, "output", "o", "", "Write the report to a file, s3://bucket/key or azblob://container/blob (default: stdout)")
	f.IntVarP(&scanTimeout, "timeout", "t", 60, "Scan timeout per file in seconds")
	f.BoolVar(&scanGitHubAnnotations, "github-annotations", false, "Emit GitHub Actions annotations")
	f.BoolVar(&scanBundledRules, "bundled-rules", true, "Include bundled rules")
	f.BoolVar(&scanNoBundledRules, "no-bundled-rules", false, "Exclude bundled rules")
	f.StringVar(&scanFormat, "format", report.FormatJSON, "Report format: json, sarif")
	f.IntVar(&scanWorkers, "workers", 1, "Number of files scanned concurrently")
	f.BoolVar(&scanGit, "git", false, "Scan the tree of a git revision in --dir instead of the working directory")
	f.StringVar(&scanGitRef, "git-ref", "HEAD", "Revision to scan with --git")
	f.StringVar(&scanExtractArchives, "extract-archives", "", "Also scan archive members: all, or a list of zip,jar,7z,tar,tgz")
	f.BoolVar(&scanSkipHidden, "skip-hidden", false, "Skip hidden files and directories with --dir")
	f.BoolVar(&scanRespectGitignore, "respect-gitignore", false, "Skip paths ignored by the root .gitignore with --dir")
	f.Int64Var(&scanMaxFileSize, "max-file-size", 0, "Skip files larger than this many bytes (0 = no limit)")
	f.StringVar(&scanRulesInclude, "rules-include", "", "Only load rule namespaces matching regex pattern (comma-separated)")
	f.StringVar(&scanRulesExclude, "rules-exclude", "", "Skip rule namespaces matching regex pattern (comma-separated)")
	f.StringVar(&scanDB, "db", "", "Record the scan in this results database")
	f.StringVar(&scanFailOn, "fail-on", "", "Exit with status 2 when a match has at least this severity")
	f.StringVar(&scanAnnotations, "annotations", annotate.ModeNone, "Annotations: auto, github, none")
	f.StringVar(&scanColor, "color", report.ColorAuto, "Color output: auto, always, never")
}

// scanOptions is the scan configuration after merging flags and the
// config file.
type scanOptions struct {
	input       string
	dir         string
	include     []string
	rules       []string
	bundled     bool
	bundledDir  string
	filter      rule.FilterConfig
	output      string
	format      string
	timeout     time.Duration
	workers     int
	git         bool
	gitRef      string
	archives    string
	skipHidden  bool
	gitignore   bool
	maxFileSize int64
	db          string
	failOn      types.Severity
	hasFailOn   bool
	annotations bool
	colorOn     bool
	s3          output.S3Config
	azure       output.AzureConfig
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)
	stderr := cmd.ErrOrStderr()

	opts, err := resolveScanOptions(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	// Rules
	rulePaths := rule.CollectPaths(opts.rules, opts.bundled, rule.BundledDir(opts.bundledDir))
	if len(rulePaths) == 0 {
		return &ExitError{Code: exitError, Err: errNoRulesSpecified}
	}

	ns, err := rule.NewLoader(log).Resolve(rulePaths)
	if err != nil {
		return &ExitError{Code: exitError, Err: fmt.Errorf("Failed to load YARA rules: %w", err)}
	}
	if !opts.filter.Empty() {
		ns, err = rule.Filter(ns, opts.filter)
		if err != nil {
			return fmt.Errorf("filtering rules: %w", err)
		}
		if ns.Len() == 0 {
			return &ExitError{Code: exitError, Err: fmt.Errorf("Failed to load YARA rules: %w", rule.ErrNoRules)}
		}
	}

	sources := ns.Sources()
	fmt.Fprintf(stderr, "Loading %d rule file(s):\n", len(sources))
	for _, src := range sources {
		fmt.Fprintf(stderr, "  - %s: %s\n", src.Namespace, src.Path)
	}

	e, err := engine.New(engine.Config{Sources: sources, Timeout: opts.timeout})
	if err != nil {
		log.Error(fmt.Sprintf("Error compiling YARA rules: %v", err))
		return &ExitError{Code: exitError, Err: errors.New("Failed to load YARA rules")}
	}
	defer e.Close()

	// Targets
	enumerator, source, mode := createEnumerator(opts, log)
	targets, err := enumerator.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("enumerating targets: %w", err)
	}
	log.Debug("targets enumerated", "count", len(targets), "mode", mode)

	// Aggregation
	styles := report.NewStyles(opts.colorOn)
	agg := report.NewAggregator(stderr, styles)

	var recorder *store.Recorder
	if opts.db != "" {
		s, err := store.New(store.Config{Path: opts.db})
		if err != nil {
			return fmt.Errorf("creating store: %w", err)
		}
		defer s.Close()

		recorder, err = store.NewRecorder(s, store.NewScanInfo(source, mode, sources))
		if err != nil {
			return fmt.Errorf("recording scan: %w", err)
		}
		agg.OnResult = recorder.Record
	}

	sc := scanner.New(e, scanner.Options{
		Workers:  opts.workers,
		Progress: stderr,
		Logger:   log,
	})
	if err := sc.Run(ctx, targets, agg); err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	r := agg.Report()
	report.WriteSummary(stderr, r, styles)

	if opts.annotations {
		high := annotate.Emit(cmd.OutOrStdout(), r)
		if err := annotate.WriteOutputs(stderr, r.FilesWithMatches, high, nil); err != nil {
			log.Warn("failed to write step outputs", "error", err)
		}
	}

	if err := writeReport(ctx, cmd, opts, r, sources); err != nil {
		return err
	}

	if recorder != nil {
		info, err := recorder.Finish(r)
		if err != nil {
			return fmt.Errorf("recording scan: %w", err)
		}
		log.Info("scan recorded", "db", opts.db, "scan_id", info.ID)
	}

	if opts.hasFailOn {
		if n := r.CountAtLeast(opts.failOn); n > 0 {
			return &ExitError{
				Code: exitFailOn,
				Err:  fmt.Errorf("%d match(es) at or above severity %s", n, opts.failOn),
			}
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// resolveScanOptions merges flags over the config file over flag defaults.
func resolveScanOptions(cmd *cobra.Command, cfg *config.Config) (*scanOptions, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}

	opts := &scanOptions{
		input:       scanInput,
		dir:         scanDir,
		include:     scanInclude,
		rules:       scanRules,
		bundled:     scanBundledRules && !scanNoBundledRules,
		bundledDir:  cfg.BundledRulesDir,
		output:      scanOutput,
		format:      scanFormat,
		timeout:     time.Duration(scanTimeout) * time.Second,
		workers:     scanWorkers,
		git:         scanGit,
		gitRef:      scanGitRef,
		archives:    scanExtractArchives,
		skipHidden:  scanSkipHidden,
		gitignore:   scanRespectGitignore,
		maxFileSize: scanMaxFileSize,
		db:          scanDB,
		filter: rule.FilterConfig{
			Include: rule.ParsePatterns(scanRulesInclude),
			Exclude: rule.ParsePatterns(scanRulesExclude),
		},
		s3:    s3Config(cfg),
		azure: output.AzureConfig{ConnectionString: cfg.Azure.ConnectionString},
	}

	if !flagChanged(cmd, "include") && len(cfg.Include) > 0 {
		opts.include = cfg.Include
	}
	if !flagChanged(cmd, "rules") && len(cfg.Rules) > 0 {
		opts.rules = cfg.Rules
	}
	if !flagChanged(cmd, "bundled-rules") && !flagChanged(cmd, "no-bundled-rules") && cfg.BundledRules != nil {
		opts.bundled = *cfg.BundledRules
	}
	if !flagChanged(cmd, "rules-include") && len(cfg.RulesInclude) > 0 {
		opts.filter.Include = cfg.RulesInclude
	}
	if !flagChanged(cmd, "rules-exclude") && len(cfg.RulesExclude) > 0 {
		opts.filter.Exclude = cfg.RulesExclude
	}
	if !flagChanged(cmd, "output") && cfg.Output != "" {
		opts.output = cfg.Output
	}
	if !flagChanged(cmd, "format") && cfg.Format != "" {
		opts.format = cfg.Format
	}
	if !flagChanged(cmd, "timeout") && cfg.Timeout > 0 {
		opts.timeout = cfg.TimeoutDuration()
	}
	if !flagChanged(cmd, "workers") && cfg.Workers > 0 {
		opts.workers = cfg.Workers
	}
	if !flagChanged(cmd, "db") && cfg.DB != "" {
		opts.db = cfg.DB
	}

	// Targets
	if opts.input == "" && opts.dir == "" {
		return nil, fmt.Errorf("either --input or --dir must be specified")
	}
	if opts.input != "" && opts.dir != "" {
		return nil, fmt.Errorf("--input and --dir are mutually exclusive")
	}
	if opts.git && opts.dir == "" {
		return nil, fmt.Errorf("--git requires --dir")
	}
	if opts.timeout <= 0 {
		return nil, fmt.Errorf("--timeout must be positive")
	}

	switch opts.format {
	case report.FormatJSON, report.FormatSARIF:
	default:
		return nil, fmt.Errorf("unknown output format: %s", opts.format)
	}

	if _, err := output.Parse(opts.output); err != nil {
		return nil, err
	}

	failOn := scanFailOn
	if !flagChanged(cmd, "fail-on") && cfg.FailOn != "" {
		failOn = cfg.FailOn
	}
	if failOn != "" {
		sev, err := types.ParseSeverityStrict(failOn)
		if err != nil {
			return nil, fmt.Errorf("invalid --fail-on: %w", err)
		}
		opts.failOn = sev
		opts.hasFailOn = true
	}

	colorOn, err := report.ColorEnabled(scanColor, os.Stderr)
	if err != nil {
		return nil, err
	}
	opts.colorOn = colorOn

	mode := scanAnnotations
	if !flagChanged(cmd, "annotations") && cfg.Annotations != "" {
		mode = cfg.Annotations
	}
	enabled, err := annotate.Enabled(mode, scanGitHubAnnotations, nil)
	if err != nil {
		return nil, err
	}
	opts.annotations = enabled

	return opts, nil
}

// createEnumerator picks the target source and returns it with the source
// and mode recorded in the results database.
func createEnumerator(opts *scanOptions, log hclog.Logger) (enum.Enumerator, string, string) {
	var (
		e      enum.Enumerator
		source string
		mode   string
	)

	switch {
	case opts.input != "":
		e, source, mode = enum.NewManifestEnumerator(opts.input), opts.input, "manifest"
	default:
		ecfg := enum.Config{
			Root:             opts.dir,
			Include:          opts.include,
			SkipHidden:       opts.skipHidden,
			RespectGitignore: opts.gitignore,
			MaxFileSize:      opts.maxFileSize,
		}
		if opts.git {
			g := enum.NewGitEnumerator(ecfg)
			g.CommitRef = opts.gitRef
			e, source, mode = g, opts.dir+"@"+opts.gitRef, "git"
		} else {
			e, source, mode = enum.NewFilesystemEnumerator(ecfg), opts.dir, "dir"
		}
	}

	if opts.archives != "" {
		expander := enum.NewArchiveExpander(e, opts.archives, enum.DefaultExtractLimits())
		expander.OnError = func(path string, err error) {
			log.Warn(fmt.Sprintf("Error extracting %s: %v", path, err))
		}
		e = expander
	}
	return e, source, mode
}

// writeReport renders the report and delivers it to --output.
func writeReport(ctx context.Context, cmd *cobra.Command, opts *scanOptions, r *types.Report, sources []types.RuleSource) error {
	var buf bytes.Buffer
	if err := report.Write(&buf, opts.format, r, sources, version); err != nil {
		return err
	}

	w := output.NewWriter(cmd.OutOrStdout())
	w.S3 = opts.s3
	w.Azure = opts.azure
	dest, err := w.WriteTo(ctx, opts.output, buf.Bytes(), contentType(opts.format))
	if err != nil {
		return err
	}
	if dest.Kind != output.KindStdout {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nResults written to: %s\n", dest.Raw)
	}
	return nil
}

func contentType(format string) string {
	if format == report.FormatSARIF {
		return "application/sarif+json"
	}
	return "application/json"
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
