package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

func TestStore_Interface(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*MemoryStore)(nil)
}

func TestNew(t *testing.T) {
	s, err := New(Config{Path: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	s.Close()

	s, err = New(Config{Path: filepath.Join(t.TempDir(), "results.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = New(Config{})
	assert.Error(t, err)
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLite(filepath.Join(t.TempDir(), "results.db"))
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
}

func sampleResults() []types.Result {
	m1 := types.NewMatch("miner", "crypto")
	m1.Tags = []string{"malware"}
	m1.Meta["severity"] = "high"
	m1.Meta["score"] = int64(90)
	m1.Meta["verified"] = true
	m1.Strings = []types.MatchString{{Identifier: "$a", Offset: 12}}

	m2 := types.NewMatch("packer", "packers")

	return []types.Result{
		{
			File:       "evil/bin",
			PackageRef: &types.PackageRef{Package: "evil", Version: "1.0.0", SHA256: "abc", Type: "elf"},
			Matches:    []types.Match{m1, m2},
		},
		{
			File:    "lib/x.js",
			Matches: []types.Match{m2},
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		rules := []types.RuleSource{{Namespace: "crypto", Path: "/r/crypto.yar"}, {Namespace: "packers", Path: "/r/packers.yar"}}
		info := NewScanInfo("manifest.json", "manifest", rules)

		rec, err := NewRecorder(s, info)
		require.NoError(t, err)

		agg := types.NewReport()
		results := sampleResults()
		for _, r := range results {
			target := types.Target{Path: r.File, Package: r.PackageRef}
			res := agg.Add(target, r.Matches)
			rec.Record(target, res)
		}
		agg.Add(types.Target{Path: "clean.js"}, nil)

		finished, err := rec.Finish(agg)
		require.NoError(t, err)
		assert.False(t, finished.FinishedAt.IsZero())

		got, err := s.GetScan(info.ID)
		require.NoError(t, err)
		assert.Equal(t, "manifest.json", got.Source)
		assert.Equal(t, "manifest", got.Mode)
		assert.Equal(t, 3, got.TotalScanned)
		assert.Equal(t, 2, got.FilesWithMatches)
		assert.Equal(t, 3, got.TotalMatches)
		assert.Equal(t, rules, got.Rules)
		assert.WithinDuration(t, info.StartedAt, got.StartedAt, time.Second)

		report, err := s.GetReport(info.ID)
		require.NoError(t, err)
		assert.Equal(t, agg.TotalScanned, report.TotalScanned)
		require.Len(t, report.Results, 2)
		assert.Equal(t, results[0].File, report.Results[0].File)
		assert.Equal(t, results[0].PackageRef, report.Results[0].PackageRef)
		assert.Nil(t, report.Results[1].PackageRef)
		assert.Equal(t, results[0].Matches, report.Results[0].Matches)
		assert.True(t, report.Valid())
	})
}

func TestStore_NotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		_, err := s.GetScan("missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetReport("missing")
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.FinishScan(ScanInfo{ID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = Latest(s)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ListScans(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		first := NewScanInfo("a", "dir", nil)
		first.StartedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		second := NewScanInfo("b", "git", nil)
		second.StartedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.BeginScan(first))
		require.NoError(t, s.BeginScan(second))

		scans, err := s.ListScans()
		require.NoError(t, err)
		require.Len(t, scans, 2)
		assert.Equal(t, second.ID, scans[0].ID)
		assert.Equal(t, first.ID, scans[1].ID)
		assert.True(t, scans[0].FinishedAt.IsZero())

		latest, err := Latest(s)
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
	})
}

func TestStore_EmptyReport(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		info := NewScanInfo("dir", "dir", nil)
		require.NoError(t, s.BeginScan(info))

		report, err := s.GetReport(info.ID)
		require.NoError(t, err)
		assert.NotNil(t, report.Results)
		assert.Empty(t, report.Results)
	})
}

func TestNewScanInfo(t *testing.T) {
	a := NewScanInfo("x", "dir", nil)
	b := NewScanInfo("x", "dir", nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
	assert.True(t, a.FinishedAt.IsZero())
}

func TestStore_Annotations(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		info := NewScanInfo("src", "dir", nil)
		require.NoError(t, s.BeginScan(info))

		m := types.NewMatch("miner", "crypto")
		resultKey := ResultKey("lib/x.js")
		matchKey := MatchKey("lib/x.js", m)
		assert.Equal(t, "lib/x.js#crypto/miner", matchKey)

		require.NoError(t, s.SetAnnotation(info.ID, resultKey, Annotation{Status: StatusAccept}))
		require.NoError(t, s.SetAnnotation(info.ID, matchKey, Annotation{Status: StatusReject, Comment: "test fixture"}))

		notes, err := s.GetAnnotations(info.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]Annotation{
			resultKey: {Status: StatusAccept},
			matchKey:  {Status: StatusReject, Comment: "test fixture"},
		}, notes)

		// Overwrite, then clear.
		require.NoError(t, s.SetAnnotation(info.ID, resultKey, Annotation{Comment: "look again"}))
		require.NoError(t, s.SetAnnotation(info.ID, matchKey, Annotation{}))

		notes, err = s.GetAnnotations(info.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]Annotation{resultKey: {Comment: "look again"}}, notes)
	})
}

func TestStore_AnnotationUnknownScan(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		err := s.SetAnnotation("missing", "a.js", Annotation{Status: StatusAccept})
		assert.ErrorIs(t, err, ErrNotFound)

		notes, err := s.GetAnnotations("missing")
		require.NoError(t, err)
		assert.Empty(t, notes)
	})
}
