package scanner

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/praetorian-inc/yarascan/pkg/engine"
	"github.com/praetorian-inc/yarascan/pkg/rule"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Core wraps a compiled engine for content scanning (serve mode).
type Core struct {
	engine engine.Engine
	logger hclog.Logger
}

// CoreConfig configures NewCore.
type CoreConfig struct {
	// RulePaths are rule files or directories, resolved like the scan command.
	RulePaths []string

	// Filter narrows the resolved namespaces.
	Filter rule.FilterConfig

	// Engine config; Sources is filled from RulePaths.
	Engine engine.Config
}

// NewCore resolves and compiles rules and returns a ready Core.
func NewCore(cfg CoreConfig, logger hclog.Logger) (*Core, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	logger.Debug("NewCore starting", "paths", len(cfg.RulePaths))

	ns, err := rule.NewLoader(logger).Resolve(cfg.RulePaths)
	if err != nil {
		return nil, err
	}
	if !cfg.Filter.Empty() {
		ns, err = rule.Filter(ns, cfg.Filter)
		if err != nil {
			return nil, err
		}
		if ns.Len() == 0 {
			return nil, fmt.Errorf("%w: all namespaces filtered out", rule.ErrNoRules)
		}
	}

	ecfg := cfg.Engine
	ecfg.Sources = ns.Sources()
	e, err := engine.New(ecfg)
	if err != nil {
		logger.Debug("engine.New failed", "error", err)
		return nil, err
	}

	logger.Debug("NewCore complete", "namespaces", ns.Len())
	return &Core{engine: e, logger: logger}, nil
}

// NewCoreWithEngine wraps an existing engine.
func NewCoreWithEngine(e engine.Engine, logger hclog.Logger) *Core {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Core{engine: e, logger: logger}
}

// Scan scans a single content string
func (c *Core) Scan(ctx context.Context, content, source string) (*ScanResult, error) {
	matches, err := c.engine.ScanBytes(ctx, []byte(content))
	if err != nil {
		return nil, err
	}
	return &ScanResult{
		Source:  source,
		Matches: nonNil(matches),
	}, nil
}

// ScanBatch scans multiple content items. An item that fails to scan is
// reported with its error and zero matches.
func (c *Core) ScanBatch(ctx context.Context, items []ContentItem) (*BatchScanResult, error) {
	results := make([]ScanResult, 0, len(items))
	total := 0

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := c.engine.ScanBytes(ctx, []byte(item.Content))
		if err != nil {
			c.logger.Warn("scan failed", "source", item.Source, "error", err)
			results = append(results, ScanResult{
				Source:  item.Source,
				Matches: []types.Match{},
				Error:   err.Error(),
			})
			continue
		}

		results = append(results, ScanResult{
			Source:  item.Source,
			Matches: nonNil(matches),
		})
		total += len(matches)
	}

	return &BatchScanResult{
		Results: results,
		Total:   total,
	}, nil
}

// Namespaces lists the compiled rule sources.
func (c *Core) Namespaces() []types.RuleSource {
	return c.engine.Namespaces()
}

// Close releases scanner resources
func (c *Core) Close() {
	if c.engine != nil {
		c.engine.Close()
	}
}

func nonNil(m []types.Match) []types.Match {
	if m == nil {
		return []types.Match{}
	}
	return m
}
