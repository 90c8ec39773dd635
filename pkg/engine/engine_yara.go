//go:build cgo && !yargo && !noyara

package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hillu/go-yara/v4"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Backend names the compiled-in engine.
const Backend = "libyara"

// yaraEngine implements Engine on libyara. All namespaces share one
// compiled rule set.
type yaraEngine struct {
	mu      sync.RWMutex
	rules   *yara.Rules
	sources []types.RuleSource
	timeout time.Duration
}

// New compiles cfg.Sources into a single libyara rule set.
func New(cfg Config) (Engine, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("%w: no rule sources", ErrCompile)
	}

	c, err := yara.NewCompiler()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	defer c.Destroy()

	for _, src := range cfg.Sources {
		if err := addFile(c, src); err != nil {
			return nil, err
		}
	}

	rules, err := c.GetRules()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}

	return &yaraEngine{
		rules:   rules,
		sources: cfg.Sources,
		timeout: cfg.timeout(),
	}, nil
}

func addFile(c *yara.Compiler, src types.RuleSource) error {
	f, err := os.Open(src.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCompile, err)
	}
	defer f.Close()

	if err := c.AddFile(f, src.Namespace); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrCompile, src.Path, compilerMessages(c, err))
	}
	return nil
}

func compilerMessages(c *yara.Compiler, fallback error) string {
	if len(c.Errors) == 0 {
		return fallback.Error()
	}
	msgs := make([]string, 0, len(c.Errors))
	for _, e := range c.Errors {
		msgs = append(msgs, fmt.Sprintf("line %d: %s", e.Line, e.Text))
	}
	return strings.Join(msgs, "; ")
}

// ScanFile scans the file at path.
func (e *yaraEngine) ScanFile(ctx context.Context, path string) ([]types.Match, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.rules == nil {
		return nil, ErrClosed
	}

	timeout, err := effectiveTimeout(ctx, e.timeout)
	if err != nil {
		return nil, classify(err)
	}
	var matches yara.MatchRules
	if err := e.rules.ScanFile(path, 0, timeout, &matches); err != nil {
		return nil, classify(err)
	}
	return convert(matches), nil
}

// ScanBytes scans an in-memory buffer.
func (e *yaraEngine) ScanBytes(ctx context.Context, data []byte) ([]types.Match, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.rules == nil {
		return nil, ErrClosed
	}

	timeout, err := effectiveTimeout(ctx, e.timeout)
	if err != nil {
		return nil, classify(err)
	}
	var matches yara.MatchRules
	if err := e.rules.ScanMem(data, 0, timeout, &matches); err != nil {
		return nil, classify(err)
	}
	return convert(matches), nil
}

// Namespaces returns the compiled rule sources in load order.
func (e *yaraEngine) Namespaces() []types.RuleSource {
	return e.sources
}

// Close releases the compiled rules. Later scans return ErrClosed.
func (e *yaraEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rules != nil {
		e.rules.Destroy()
		e.rules = nil
	}
	return nil
}

func convert(in yara.MatchRules) []types.Match {
	out := make([]types.Match, 0, len(in))
	for _, mr := range in {
		metas := make([]rawMeta, 0, len(mr.Metas))
		for _, m := range mr.Metas {
			metas = append(metas, rawMeta{identifier: m.Identifier, value: m.Value})
		}
		strs := make([]rawString, 0, len(mr.Strings))
		for _, s := range mr.Strings {
			strs = append(strs, rawString{identifier: s.Name, offset: s.Offset})
		}
		out = append(out, normalize(mr.Rule, mr.Namespace, mr.Tags, metas, strs))
	}
	return out
}
