//go:build yargo

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/praetorian-inc/yarascan/pkg/types"
	"github.com/sansecio/yargo/parser"
	"github.com/sansecio/yargo/scanner"
)

// Backend names the compiled-in engine.
const Backend = "yargo"

// compiledNamespace pairs one namespace with its compiled rules. yargo has no
// namespace concept, so each rule file is compiled on its own.
type compiledNamespace struct {
	name  string
	rules *scanner.Rules
}

// yargoEngine implements Engine on the pure Go yargo scanner.
type yargoEngine struct {
	mu       sync.RWMutex
	closed   bool
	compiled []compiledNamespace
	sources  []types.RuleSource
	timeout  time.Duration
}

// New parses and compiles every source. Any syntax error aborts.
func New(cfg Config) (Engine, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("%w: no rule sources", ErrCompile)
	}

	compiled := make([]compiledNamespace, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		ruleSet, err := parser.New().ParseFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCompile, src.Path, err)
		}
		rules, err := scanner.Compile(ruleSet)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCompile, src.Path, err)
		}
		compiled = append(compiled, compiledNamespace{name: src.Namespace, rules: rules})
	}

	return &yargoEngine{
		compiled: compiled,
		sources:  cfg.Sources,
		timeout:  cfg.timeout(),
	}, nil
}

// ScanFile scans the file at path against every namespace.
func (e *yargoEngine) ScanFile(ctx context.Context, path string) ([]types.Match, error) {
	return e.scan(ctx, func(r *scanner.Rules, timeout time.Duration, m *scanner.MatchRules) error {
		return r.ScanFile(path, 0, timeout, m)
	})
}

// ScanBytes scans an in-memory buffer against every namespace.
func (e *yargoEngine) ScanBytes(ctx context.Context, data []byte) ([]types.Match, error) {
	return e.scan(ctx, func(r *scanner.Rules, timeout time.Duration, m *scanner.MatchRules) error {
		return r.ScanMem(data, 0, timeout, m)
	})
}

// scan runs fn per namespace, sharing one timeout budget across them.
func (e *yargoEngine) scan(ctx context.Context, fn func(*scanner.Rules, time.Duration, *scanner.MatchRules) error) ([]types.Match, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	timeout, err := effectiveTimeout(ctx, e.timeout)
	if err != nil {
		return nil, classify(err)
	}
	deadline := time.Now().Add(timeout)

	var out []types.Match
	for _, ns := range e.compiled {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, classify(ErrTimeout)
		}
		var matches scanner.MatchRules
		if err := fn(ns.rules, remaining, &matches); err != nil {
			return nil, classify(err)
		}
		for _, mr := range matches {
			metas := make([]rawMeta, 0, len(mr.Metas))
			for _, m := range mr.Metas {
				metas = append(metas, rawMeta{identifier: m.Identifier, value: m.Value})
			}
			strs := make([]rawString, 0, len(mr.Strings))
			for _, s := range mr.Strings {
				strs = append(strs, rawString{identifier: s.Name, offset: s.Offset})
			}
			out = append(out, normalize(mr.Rule, ns.name, mr.Tags, metas, strs))
		}
	}
	return out, nil
}

// Namespaces returns the compiled rule sources in load order.
func (e *yargoEngine) Namespaces() []types.RuleSource {
	return e.sources
}

// Close drops the compiled rules. Later scans return ErrClosed.
func (e *yargoEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.compiled = nil
	return nil
}
