package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// ErrNotFound is returned when a scan ID is unknown.
var ErrNotFound = errors.New("scan not found")

// ScanInfo describes one stored scan.
type ScanInfo struct {
	ID         string
	Source     string // manifest path, directory or repository
	Mode       string // manifest, dir or git
	StartedAt  time.Time
	FinishedAt time.Time // zero while the scan is running

	TotalScanned     int
	FilesWithMatches int
	TotalMatches     int

	// Rules are the compiled rule sources.
	Rules []types.RuleSource
}

// NewScanInfo starts a scan record with a fresh ID.
func NewScanInfo(source, mode string, rules []types.RuleSource) ScanInfo {
	return ScanInfo{
		ID:        uuid.NewString(),
		Source:    source,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
		Rules:     rules,
	}
}

// Finish copies the final counters from r and stamps the finish time.
func (s *ScanInfo) Finish(r *types.Report) {
	s.FinishedAt = time.Now().UTC()
	s.TotalScanned = r.TotalScanned
	s.FilesWithMatches = r.FilesWithMatches
	s.TotalMatches = r.TotalMatches
}

// Triage statuses.
const (
	StatusAccept = "accept"
	StatusReject = "reject"
)

// Annotation is a triage decision on a result or a single match.
type Annotation struct {
	Status  string
	Comment string
}

// Empty reports whether the annotation carries nothing worth storing.
func (a Annotation) Empty() bool {
	return a.Status == "" && a.Comment == ""
}

// ResultKey is the annotation key of a stored result.
func ResultKey(file string) string {
	return file
}

// MatchKey is the annotation key of one match within a result.
func MatchKey(file string, m types.Match) string {
	return file + "#" + m.Namespace + "/" + m.Rule
}

// Store provides persistence for scan results.
// This interface abstracts the underlying storage implementation,
// allowing for different backends (SQLite, in-memory).
type Store interface {
	// BeginScan records a new scan.
	BeginScan(info ScanInfo) error

	// AddResult stores one matched target. seq orders results within a scan.
	AddResult(scanID string, seq int, res types.Result) error

	// FinishScan updates the counters and finish time of a scan.
	FinishScan(info ScanInfo) error

	// GetScan retrieves one scan record.
	GetScan(id string) (*ScanInfo, error)

	// GetReport rebuilds the report of a scan.
	GetReport(id string) (*types.Report, error)

	// ListScans returns all scans, most recent first.
	ListScans() ([]ScanInfo, error)

	// SetAnnotation stores the triage status and comment for key within a
	// scan. An empty status and comment removes the annotation.
	SetAnnotation(scanID, key string, a Annotation) error

	// GetAnnotations returns every annotation of a scan by key.
	GetAnnotations(scanID string) (map[string]Annotation, error)

	// Close closes the database connection.
	Close() error
}

// Config for store initialization.
type Config struct {
	// Path is the database file path.
	// Use ":memory:" for an in-memory store (useful for testing).
	Path string
}

// New creates a store. ":memory:" yields a MemoryStore, anything else a
// SQLite database file.
func New(cfg Config) (Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if cfg.Path == ":memory:" {
		return NewMemory(), nil
	}
	return NewSQLite(cfg.Path)
}

// Latest returns the most recent scan in s.
func Latest(s Store) (*ScanInfo, error) {
	scans, err := s.ListScans()
	if err != nil {
		return nil, err
	}
	if len(scans) == 0 {
		return nil, ErrNotFound
	}
	return &scans[0], nil
}

// Recorder persists a scan as results arrive. Its Record method fits
// report.Aggregator.OnResult.
type Recorder struct {
	store Store
	info  ScanInfo
	seq   int
	err   error
}

// NewRecorder begins info in s.
func NewRecorder(s Store, info ScanInfo) (*Recorder, error) {
	if err := s.BeginScan(info); err != nil {
		return nil, err
	}
	return &Recorder{store: s, info: info}, nil
}

// Record stores one result. The first error is kept and returned by Finish.
func (r *Recorder) Record(_ types.Target, res *types.Result) {
	if r.err != nil {
		return
	}
	r.err = r.store.AddResult(r.info.ID, r.seq, *res)
	r.seq++
}

// Finish stores the final counters.
func (r *Recorder) Finish(report *types.Report) (*ScanInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.info.Finish(report)
	if err := r.store.FinishScan(r.info); err != nil {
		return nil, err
	}
	return &r.info, nil
}
