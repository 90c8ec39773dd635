package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/praetorian-inc/yarascan/pkg/engine"
	"github.com/praetorian-inc/yarascan/pkg/rule"
	"github.com/praetorian-inc/yarascan/pkg/scanner"
	"github.com/praetorian-inc/yarascan/pkg/serve"
)

var (
	serveRules        []string
	serveNoBundled    bool
	serveTimeout      int
	serveRulesInclude string
	serveRulesExclude string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a streaming NDJSON scanner",
	Long: `Run yarascan as a long-lived streaming server that accepts scan requests
on stdin and writes results to stdout, one JSON object per line.

Rules are compiled once at startup. Requests are processed until stdin
closes, a "close" request arrives, or SIGTERM is received.`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd.Flags())
}

func addServeFlags(f *pflag.FlagSet) {
	f.StringArrayVarP(&serveRules, "rules", "r", nil, "YARA rules file or directory (repeatable)")
	f.BoolVar(&serveNoBundled, "no-bundled-rules", false, "Exclude bundled rules")
	f.IntVarP(&serveTimeout, "timeout", "t", 60, "Scan timeout per request item in seconds")
	f.StringVar(&serveRulesInclude, "rules-include", "", "Only load rule namespaces matching regex pattern (comma-separated)")
	f.StringVar(&serveRulesExclude, "rules-exclude", "", "Skip rule namespaces matching regex pattern (comma-separated)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	paths := serveRules
	if len(paths) == 0 {
		paths = cfg.Rules
	}
	bundled := !serveNoBundled
	if !flagChanged(cmd, "no-bundled-rules") && cfg.BundledRules != nil {
		bundled = *cfg.BundledRules
	}
	rulePaths := rule.CollectPaths(paths, bundled, rule.BundledDir(cfg.BundledRulesDir))
	if len(rulePaths) == 0 {
		return &ExitError{Code: exitError, Err: errNoRulesSpecified}
	}

	timeout := time.Duration(serveTimeout) * time.Second
	if !flagChanged(cmd, "timeout") && cfg.Timeout > 0 {
		timeout = cfg.TimeoutDuration()
	}

	// Create scanner core
	core, err := scanner.NewCore(scanner.CoreConfig{
		RulePaths: rulePaths,
		Filter: rule.FilterConfig{
			Include: rule.ParsePatterns(serveRulesInclude),
			Exclude: rule.ParsePatterns(serveRulesExclude),
		},
		Engine: engine.Config{Timeout: timeout},
	}, log)
	if err != nil {
		return err
	}
	defer core.Close()

	// Set up signal handling
	ctx, stop := signalContext(cmd)
	defer stop()

	// Create and run server
	srv := serve.NewServer(core, cmd.InOrStdin(), cmd.OutOrStdout())
	srv.SetLogger(log)
	return srv.Run(ctx)
}
