// Package scanner drives the engine over a list of targets.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/praetorian-inc/yarascan/pkg/engine"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

// ProgressInterval is how often (in scanned targets) progress is printed.
const ProgressInterval = 10

// Sink receives every scanned target in target order.
type Sink interface {
	Add(t types.Target, matches []types.Match)
}

// Options configure a Scanner.
type Options struct {
	// Workers is the number of concurrent scans (default 1).
	Workers int

	// Progress receives the "Scanning" and "Progress" lines (default io.Discard).
	Progress io.Writer

	// Logger receives per-target warnings (default discard).
	Logger hclog.Logger
}

// Scanner scans targets with an engine.
type Scanner struct {
	engine   engine.Engine
	workers  int
	progress io.Writer
	log      hclog.Logger
}

// New creates a Scanner.
func New(e engine.Engine, opts Options) *Scanner {
	s := &Scanner{
		engine:   e,
		workers:  opts.Workers,
		progress: opts.Progress,
		log:      opts.Logger,
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.progress == nil {
		s.progress = io.Discard
	}
	if s.log == nil {
		s.log = hclog.NewNullLogger()
	}
	return s
}

// slot holds the outcome of one target until it is collected.
type slot struct {
	done    chan struct{}
	missing bool
	matches []types.Match
	err     error
}

// Run scans every target and hands results to sink in target order.
// Per-target failures are logged and never abort the run; only context
// cancellation does.
func (s *Scanner) Run(ctx context.Context, targets []types.Target, sink Sink) error {
	fmt.Fprintf(s.progress, "\nScanning %d files with YARA...\n", len(targets))

	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	slots := make([]slot, len(targets))
	for i := range slots {
		slots[i].done = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	indices := make(chan int, s.workers*2)

	// Feed target indices to workers
	g.Go(func() error {
		defer close(indices)
		for i := range targets {
			select {
			case indices <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Parallel scanners
	for w := 0; w < s.workers; w++ {
		g.Go(func() error {
			for i := range indices {
				s.scanInto(gctx, targets[i], &slots[i])
			}
			return nil
		})
	}

	err := s.collect(ctx, targets, slots, sink)
	cancel()
	_ = g.Wait()

	if err != nil {
		if perr := parent.Err(); perr != nil {
			return perr
		}
		return err
	}
	return nil
}

// collect waits for each slot in order, printing progress and warnings and
// feeding the sink.
func (s *Scanner) collect(ctx context.Context, targets []types.Target, slots []slot, sink Sink) error {
	total := len(targets)
	scanned := 0
	for i := range slots {
		select {
		case <-slots[i].done:
		case <-ctx.Done():
			return ctx.Err()
		}

		t := targets[i]
		sl := &slots[i]
		if sl.missing {
			s.log.Warn(fmt.Sprintf("File not found: %s", warnPath(t)))
			continue
		}

		scanned++
		if scanned%ProgressInterval == 0 || scanned == total {
			fmt.Fprintf(s.progress, "  Progress: %d/%d\n", scanned, total)
		}

		if sl.err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.warnScanError(t, sl.err)
		}
		sink.Add(t, sl.matches)
	}
	return nil
}

// scanInto scans one target and records the outcome.
func (s *Scanner) scanInto(ctx context.Context, t types.Target, sl *slot) {
	defer close(sl.done)

	if !t.InMemory() {
		if t.FullPath == "" {
			sl.missing = true
			return
		}
		if _, err := os.Stat(t.FullPath); err != nil {
			sl.missing = true
			return
		}
	}

	matches, err := s.ScanTarget(ctx, t)
	sl.matches = matches
	sl.err = err
}

// ScanTarget scans a single target, in memory or on disk.
func (s *Scanner) ScanTarget(ctx context.Context, t types.Target) ([]types.Match, error) {
	if t.InMemory() {
		data, err := t.Load()
		if err != nil {
			return nil, err
		}
		return s.engine.ScanBytes(ctx, data)
	}
	return s.engine.ScanFile(ctx, t.FullPath)
}

func (s *Scanner) warnScanError(t types.Target, err error) {
	path := warnPath(t)
	switch {
	case errors.Is(err, engine.ErrTimeout):
		s.log.Warn(fmt.Sprintf("Scan timeout for %s", path))
	case errors.Is(err, engine.ErrScan):
		s.log.Warn(fmt.Sprintf("YARA error scanning %s: %s", path, engineMessage(err, engine.ErrScan)))
	default:
		s.log.Warn(fmt.Sprintf("Error scanning %s: %v", path, err))
	}
}

// ===========================================================================
// HELPERS
// ===========================================================================

// warnPath is the filesystem path when known, else the reported path.
func warnPath(t types.Target) string {
	if t.FullPath != "" {
		return t.FullPath
	}
	return t.Path
}

// engineMessage strips the sentinel prefix from a wrapped engine error.
func engineMessage(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}
