// Package yarascan scans files and content with YARA rules and aggregates
// the matches into a report.
//
// # Basic Usage
//
// Compile a rules directory and scan content:
//
//	scanner, err := yarascan.NewScanner(yarascan.WithRulePaths("./rules"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scanner.Close()
//
//	matches, err := scanner.ScanString(ctx, "eval(atob(payload))")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, m := range matches {
//	    fmt.Printf("%s/%s (severity: %s)\n", m.Namespace, m.Rule, m.Severity())
//	}
//
// # Scanning a Directory
//
//	report, err := scanner.ScanDir(ctx, "./node_modules", "*.js", "*.mjs")
//	fmt.Println(report.FilesWithMatches, report.TotalMatches)
package yarascan

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/praetorian-inc/yarascan/pkg/engine"
	"github.com/praetorian-inc/yarascan/pkg/enum"
	"github.com/praetorian-inc/yarascan/pkg/report"
	"github.com/praetorian-inc/yarascan/pkg/rule"
	"github.com/praetorian-inc/yarascan/pkg/scanner"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Re-export commonly used types for convenience.
// Users can import just "github.com/praetorian-inc/yarascan" without subpackages.
type (
	// Match is a single rule hit.
	Match = types.Match

	// Report is the aggregated outcome of a scan.
	Report = types.Report

	// RuleSource is one compiled rule file and its namespace.
	RuleSource = types.RuleSource

	// Severity is the rule-declared severity of a match.
	Severity = types.Severity
)

// Scanner compiles rules once and scans content, files, directories and
// manifests with them.
type Scanner struct {
	engine engine.Engine
	config *scannerConfig
	mu     sync.RWMutex
}

// scannerConfig holds scanner configuration.
type scannerConfig struct {
	rulePaths []string
	filter    rule.FilterConfig
	timeout   time.Duration
	workers   int
	logger    hclog.Logger
	progress  io.Writer
}

// Option configures a Scanner.
type Option func(*scannerConfig)

// WithRulePaths adds rule files or directories. Later paths shadow earlier
// ones that define the same namespace.
func WithRulePaths(paths ...string) Option {
	return func(c *scannerConfig) {
		c.rulePaths = append(c.rulePaths, paths...)
	}
}

// WithNamespaceFilter keeps only namespaces matching include and not
// matching exclude (regular expressions).
func WithNamespaceFilter(include, exclude []string) Option {
	return func(c *scannerConfig) {
		c.filter = rule.FilterConfig{Include: include, Exclude: exclude}
	}
}

// WithTimeout sets the per-target scan timeout. Default is 60 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *scannerConfig) {
		c.timeout = d
	}
}

// WithWorkers sets the number of concurrent scans for ScanDir and
// ScanManifest. Default is 1.
func WithWorkers(n int) Option {
	return func(c *scannerConfig) {
		c.workers = n
	}
}

// WithLogger receives rule loading and per-target warnings.
func WithLogger(l hclog.Logger) Option {
	return func(c *scannerConfig) {
		c.logger = l
	}
}

// WithProgress receives the progress and match lines of ScanDir and
// ScanManifest.
func WithProgress(w io.Writer) Option {
	return func(c *scannerConfig) {
		c.progress = w
	}
}

// NewScanner resolves and compiles the configured rules.
func NewScanner(opts ...Option) (*Scanner, error) {
	config := &scannerConfig{
		timeout:  engine.DefaultTimeout,
		workers:  1,
		logger:   hclog.NewNullLogger(),
		progress: io.Discard,
	}
	for _, opt := range opts {
		opt(config)
	}

	if len(config.rulePaths) == 0 {
		return nil, fmt.Errorf("%w: no rule paths given", rule.ErrNoRules)
	}

	ns, err := rule.NewLoader(config.logger).Resolve(config.rulePaths)
	if err != nil {
		return nil, err
	}
	if !config.filter.Empty() {
		if ns, err = rule.Filter(ns, config.filter); err != nil {
			return nil, err
		}
		if ns.Len() == 0 {
			return nil, fmt.Errorf("%w: all namespaces filtered out", rule.ErrNoRules)
		}
	}

	e, err := engine.New(engine.Config{Sources: ns.Sources(), Timeout: config.timeout})
	if err != nil {
		return nil, err
	}
	return newScanner(e, config), nil
}

func newScanner(e engine.Engine, config *scannerConfig) *Scanner {
	return &Scanner{engine: e, config: config}
}

// ScanString scans a string.
func (s *Scanner) ScanString(ctx context.Context, content string) ([]Match, error) {
	return s.ScanBytes(ctx, []byte(content))
}

// ScanBytes scans raw bytes.
func (s *Scanner) ScanBytes(ctx context.Context, content []byte) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.ScanBytes(ctx, content)
}

// ScanFile scans the file at path.
func (s *Scanner) ScanFile(ctx context.Context, path string) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.ScanFile(ctx, path)
}

// ScanDir scans every file below dir matching any include pattern (all files
// when none are given).
func (s *Scanner) ScanDir(ctx context.Context, dir string, include ...string) (*Report, error) {
	return s.scan(ctx, enum.NewFilesystemEnumerator(enum.Config{Root: dir, Include: include}))
}

// ScanManifest scans the files declared in a JSON or YAML manifest.
func (s *Scanner) ScanManifest(ctx context.Context, path string) (*Report, error) {
	return s.scan(ctx, enum.NewManifestEnumerator(path))
}

func (s *Scanner) scan(ctx context.Context, e enum.Enumerator) (*Report, error) {
	targets, err := e.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := report.NewAggregator(s.config.progress, nil)
	sc := scanner.New(s.engine, scanner.Options{
		Workers:  s.config.workers,
		Progress: s.config.progress,
		Logger:   s.config.logger,
	})
	if err := sc.Run(ctx, targets, agg); err != nil {
		return nil, err
	}
	return agg.Report(), nil
}

// Namespaces returns the compiled rule sources in load order.
func (s *Scanner) Namespaces() []RuleSource {
	return s.engine.Namespaces()
}

// Close releases scanner resources.
// Always call Close when done with the scanner.
func (s *Scanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		return s.engine.Close()
	}
	return nil
}

// Backend names the compiled-in YARA engine.
func Backend() string {
	return engine.Backend
}
