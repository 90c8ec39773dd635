// Package logger builds the leveled logger shared by the CLI and scanner.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// EnvLevel supplies the log level when Options.Level is empty.
const EnvLevel = "YARASCAN_LOG_LEVEL"

// Options configures New.
type Options struct {
	Name       string
	Level      string
	JSONFormat bool
	Output     io.Writer
}

// New creates an hclog.Logger. An explicit Options.Level wins over the
// environment variable; an empty or unknown level means INFO.
func New(opts Options) hclog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := opts.Level
	if level == "" {
		level = os.Getenv(EnvLevel)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:        opts.Name,
		Level:       ParseLevel(level),
		Output:      out,
		JSONFormat:  opts.JSONFormat,
		DisableTime: true,
	})
}

// Discard returns a logger that drops everything.
func Discard() hclog.Logger {
	return hclog.NewNullLogger()
}

// ParseLevel converts a level name to an hclog.Level.
func ParseLevel(level string) hclog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "WARN", "WARNING":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	case "OFF":
		return hclog.Off
	default:
		return hclog.Info
	}
}
