package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/yarascan/pkg/config"
	"github.com/praetorian-inc/yarascan/pkg/logger"
	"github.com/praetorian-inc/yarascan/pkg/output"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "yarascan",
	Short: "yarascan - YARA scanner for packages and source trees",
	Long: `yarascan matches files against YARA rules and reports the hits.

Targets come from a package manifest (--input), a directory (--dir), a git
revision (--dir with --git) or the members of archives found among them.
Results are written as JSON or SARIF, can be stored in a results database,
and can be surfaced as GitHub Actions annotations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .yarascan.yml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// loadConfig reads --config, or .yarascan.yml when present.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the command logger writing to the command's stderr.
// The level comes from --log-level, then YARASCAN_LOG_LEVEL, then the config
// file.
func newLogger(cmd *cobra.Command, cfg *config.Config) hclog.Logger {
	level := logLevel
	if level == "" {
		level = os.Getenv(logger.EnvLevel)
	}
	jsonFormat := false
	if cfg != nil {
		if level == "" {
			level = cfg.Logger.Level
		}
		jsonFormat = cfg.Logger.JSONFormat
	}
	return logger.New(logger.Options{
		Name:       "yarascan",
		Level:      level,
		JSONFormat: jsonFormat,
		Output:     cmd.ErrOrStderr(),
	})
}

func s3Config(cfg *config.Config) output.S3Config {
	return output.S3Config{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		SessionToken:    cfg.S3.SessionToken,
	}
}
