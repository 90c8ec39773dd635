package store

import (
	"errors"
	"fmt"
)

// MergeConfig configures the merge operation.
type MergeConfig struct {
	// SourcePaths are the database files to merge from.
	SourcePaths []string
	// DestPath is the destination database file.
	DestPath string
}

// MergeStats tracks merge operation statistics.
type MergeStats struct {
	ScansMerged       int
	ScansSkipped      int
	ResultsMerged     int
	AnnotationsMerged int
	SourcesProcessed  int
}

// Merge combines multiple results databases into one.
// Scans already present in the destination (same ID) are skipped.
func Merge(cfg MergeConfig) (*MergeStats, error) {
	if len(cfg.SourcePaths) == 0 {
		return nil, fmt.Errorf("no source databases specified")
	}
	if cfg.DestPath == "" {
		return nil, fmt.Errorf("destination path is required")
	}

	dest, err := New(Config{Path: cfg.DestPath})
	if err != nil {
		return nil, fmt.Errorf("opening destination database: %w", err)
	}
	defer dest.Close()

	stats := &MergeStats{}
	for _, sourcePath := range cfg.SourcePaths {
		src, err := NewSQLite(sourcePath)
		if err != nil {
			return stats, fmt.Errorf("opening source database %s: %w", sourcePath, err)
		}
		err = MergeInto(dest, src, stats)
		src.Close()
		if err != nil {
			return stats, fmt.Errorf("merging from %s: %w", sourcePath, err)
		}
		stats.SourcesProcessed++
	}

	return stats, nil
}

// MergeInto copies every scan of src missing from dest.
func MergeInto(dest, src Store, stats *MergeStats) error {
	scans, err := src.ListScans()
	if err != nil {
		return err
	}

	// Oldest first so destination order matches scan order.
	for i := len(scans) - 1; i >= 0; i-- {
		info := scans[i]

		if _, err := dest.GetScan(info.ID); err == nil {
			stats.ScansSkipped++
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		full, err := src.GetScan(info.ID)
		if err != nil {
			return err
		}
		report, err := src.GetReport(info.ID)
		if err != nil {
			return err
		}

		if err := dest.BeginScan(*full); err != nil {
			return err
		}
		for seq, res := range report.Results {
			if err := dest.AddResult(full.ID, seq, res); err != nil {
				return err
			}
			stats.ResultsMerged++
		}
		if !full.FinishedAt.IsZero() {
			if err := dest.FinishScan(*full); err != nil {
				return err
			}
		}

		notes, err := src.GetAnnotations(full.ID)
		if err != nil {
			return err
		}
		for key, a := range notes {
			if err := dest.SetAnnotation(full.ID, key, a); err != nil {
				return err
			}
			stats.AnnotationsMerged++
		}
		stats.ScansMerged++
	}
	return nil
}
