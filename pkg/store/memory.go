package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// scanRecord is one scan and its ordered results.
type scanRecord struct {
	info    ScanInfo
	order   int
	results map[int]types.Result // keyed by seq
	notes   map[string]Annotation
}

// MemoryStore implements Store using in-memory data structures.
// Used for ":memory:" paths, serve mode and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	scans map[string]*scanRecord
	next  int
}

// NewMemory creates a new in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		scans: make(map[string]*scanRecord),
	}
}

// BeginScan records a new scan.
func (m *MemoryStore) BeginScan(info ScanInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.scans[info.ID]; exists {
		return fmt.Errorf("scan %s already exists", info.ID)
	}
	info.Rules = append([]types.RuleSource(nil), info.Rules...)
	m.scans[info.ID] = &scanRecord{
		info:    info,
		order:   m.next,
		results: make(map[int]types.Result),
		notes:   make(map[string]Annotation),
	}
	m.next++
	return nil
}

// AddResult stores one matched target.
func (m *MemoryStore) AddResult(scanID string, seq int, res types.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.scans[scanID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, scanID)
	}
	if _, exists := rec.results[seq]; exists {
		return fmt.Errorf("result %d of scan %s already exists", seq, scanID)
	}
	rec.results[seq] = res
	return nil
}

// FinishScan updates the counters and finish time of a scan.
func (m *MemoryStore) FinishScan(info ScanInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.scans[info.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, info.ID)
	}
	rec.info.FinishedAt = info.FinishedAt
	rec.info.TotalScanned = info.TotalScanned
	rec.info.FilesWithMatches = info.FilesWithMatches
	rec.info.TotalMatches = info.TotalMatches
	return nil
}

// GetScan retrieves one scan record.
func (m *MemoryStore) GetScan(id string) (*ScanInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.scans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	info := rec.info
	return &info, nil
}

// GetReport rebuilds the report of a scan.
func (m *MemoryStore) GetReport(id string) (*types.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.scans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	seqs := make([]int, 0, len(rec.results))
	for seq := range rec.results {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	report := types.NewReport()
	report.TotalScanned = rec.info.TotalScanned
	report.FilesWithMatches = rec.info.FilesWithMatches
	report.TotalMatches = rec.info.TotalMatches
	for _, seq := range seqs {
		report.Results = append(report.Results, rec.results[seq])
	}
	return report, nil
}

// ListScans returns all scans, most recent first.
func (m *MemoryStore) ListScans() ([]ScanInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*scanRecord, 0, len(m.scans))
	for _, rec := range m.scans {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].info.StartedAt.Equal(recs[j].info.StartedAt) {
			return recs[i].info.StartedAt.After(recs[j].info.StartedAt)
		}
		return recs[i].order > recs[j].order
	})

	scans := make([]ScanInfo, 0, len(recs))
	for _, rec := range recs {
		scans = append(scans, rec.info)
	}
	return scans, nil
}

// SetAnnotation stores or clears an annotation.
func (m *MemoryStore) SetAnnotation(scanID, key string, a Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.scans[scanID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, scanID)
	}
	if a.Empty() {
		delete(rec.notes, key)
		return nil
	}
	rec.notes[key] = a
	return nil
}

// GetAnnotations returns a copy of the annotations of a scan.
func (m *MemoryStore) GetAnnotations(scanID string) (map[string]Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Annotation)
	rec, ok := m.scans[scanID]
	if !ok {
		return out, nil
	}
	for k, v := range rec.notes {
		out[k] = v
	}
	return out, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
