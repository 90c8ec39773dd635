// Package engine adapts an external YARA implementation to yarascan's match
// model.
//
// Two backends exist, selected at build time:
//
//   - default (CGO_ENABLED=1): libyara through github.com/hillu/go-yara/v4
//   - -tags yargo: the pure Go github.com/sansecio/yargo engine
//
// Builds with neither, including cgo builds with -tags noyara on hosts
// without libyara headers, get a stub whose New returns an error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

var (
	// ErrCompile wraps rule compilation failures.
	ErrCompile = errors.New("compiling YARA rules")

	// ErrTimeout is returned when a single target exceeds the scan timeout.
	ErrTimeout = errors.New("scan timeout")

	// ErrScan wraps any other engine failure on a single target.
	ErrScan = errors.New("YARA error")

	// ErrClosed is returned by scans after Close.
	ErrClosed = fmt.Errorf("%w: engine closed", ErrScan)
)

// DefaultTimeout is the per-target scan timeout.
const DefaultTimeout = 60 * time.Second

// Engine scans content with a compiled rule set.
type Engine interface {
	// ScanFile scans the file at path.
	ScanFile(ctx context.Context, path string) ([]types.Match, error)

	// ScanBytes scans an in-memory buffer.
	ScanBytes(ctx context.Context, data []byte) ([]types.Match, error)

	// Namespaces returns the compiled rule sources in load order.
	Namespaces() []types.RuleSource

	// Close releases engine resources.
	Close() error
}

// Config for engine initialization.
type Config struct {
	// Sources to compile, one namespace each.
	Sources []types.RuleSource

	// Timeout bounds each single scan (0 = DefaultTimeout).
	Timeout time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// effectiveTimeout shortens the configured timeout to the context deadline.
func effectiveTimeout(ctx context.Context, configured time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < configured {
			if remaining <= 0 {
				return 0, ErrTimeout
			}
			return remaining, nil
		}
	}
	return configured, nil
}

// classify maps a backend error to ErrTimeout or ErrScan.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrScan, err)
}

// rawMeta and rawString are the backend-neutral pieces normalize consumes.
type rawMeta struct {
	identifier string
	value      any
}

type rawString struct {
	identifier string
	offset     uint64
}

// normalize turns a backend match into a types.Match. Metadata keeps the last
// value of duplicated identifiers; strings keep the first offset of each
// distinct identifier, capped at types.MaxMatchStrings.
func normalize(rule, namespace string, tags []string, metas []rawMeta, strs []rawString) types.Match {
	m := types.NewMatch(rule, namespace)
	m.Tags = append(m.Tags, tags...)

	for _, meta := range metas {
		m.Meta[meta.identifier] = scalar(meta.value)
	}

	seen := make(map[string]bool, len(strs))
	for _, s := range strs {
		if len(m.Strings) == types.MaxMatchStrings {
			break
		}
		if seen[s.identifier] {
			continue
		}
		seen[s.identifier] = true
		m.Strings = append(m.Strings, types.MatchString{Identifier: s.identifier, Offset: s.offset})
	}
	return m
}

// scalar coerces metadata values to string, int64 or bool.
func scalar(v any) any {
	switch x := v.(type) {
	case string, bool, int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
