package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// seedDB writes one finished scan with the sample results to a new file.
func seedDB(t *testing.T, path string) ScanInfo {
	t.Helper()
	s, err := NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	info := NewScanInfo(path, "dir", []types.RuleSource{{Namespace: "crypto", Path: "/r/crypto.yar"}})
	require.NoError(t, s.BeginScan(info))
	for i, res := range sampleResults() {
		require.NoError(t, s.AddResult(info.ID, i, res))
	}
	info.Finish(&types.Report{TotalScanned: 5, FilesWithMatches: 2, TotalMatches: 3})
	require.NoError(t, s.FinishScan(info))
	return info
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	srcA := filepath.Join(dir, "a.db")
	srcB := filepath.Join(dir, "b.db")
	dest := filepath.Join(dir, "merged.db")
	infoA := seedDB(t, srcA)
	infoB := seedDB(t, srcB)

	stats, err := Merge(MergeConfig{SourcePaths: []string{srcA, srcB}, DestPath: dest})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SourcesProcessed)
	assert.Equal(t, 2, stats.ScansMerged)
	assert.Equal(t, 4, stats.ResultsMerged)
	assert.Equal(t, 0, stats.ScansSkipped)

	merged, err := NewSQLite(dest)
	require.NoError(t, err)
	defer merged.Close()

	for _, id := range []string{infoA.ID, infoB.ID} {
		report, err := merged.GetReport(id)
		require.NoError(t, err)
		assert.Equal(t, 5, report.TotalScanned)
		assert.Len(t, report.Results, 2)

		info, err := merged.GetScan(id)
		require.NoError(t, err)
		assert.Len(t, info.Rules, 1)
	}
}

func TestMerge_SkipsExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.db")
	dest := filepath.Join(dir, "merged.db")
	seedDB(t, src)

	_, err := Merge(MergeConfig{SourcePaths: []string{src}, DestPath: dest})
	require.NoError(t, err)

	stats, err := Merge(MergeConfig{SourcePaths: []string{src}, DestPath: dest})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ScansMerged)
	assert.Equal(t, 1, stats.ScansSkipped)
}

func TestMerge_Validation(t *testing.T) {
	_, err := Merge(MergeConfig{DestPath: "x.db"})
	assert.ErrorContains(t, err, "no source databases")

	_, err = Merge(MergeConfig{SourcePaths: []string{"a.db"}})
	assert.ErrorContains(t, err, "destination path is required")
}

func TestMergeInto_Memory(t *testing.T) {
	src := NewMemory()
	info := NewScanInfo("s", "dir", nil)
	require.NoError(t, src.BeginScan(info))
	require.NoError(t, src.AddResult(info.ID, 0, sampleResults()[0]))

	dest := NewMemory()
	stats := &MergeStats{}
	require.NoError(t, MergeInto(dest, src, stats))
	assert.Equal(t, 1, stats.ScansMerged)

	report, err := dest.GetReport(info.ID)
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
}

func TestMerge_CopiesAnnotations(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.db")
	dest := filepath.Join(dir, "merged.db")
	info := seedDB(t, src)

	s, err := NewSQLite(src)
	require.NoError(t, err)
	require.NoError(t, s.SetAnnotation(info.ID, ResultKey("lib/x.js"), Annotation{Status: StatusReject, Comment: "vendored"}))
	require.NoError(t, s.Close())

	stats, err := Merge(MergeConfig{SourcePaths: []string{src}, DestPath: dest})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AnnotationsMerged)

	merged, err := NewSQLite(dest)
	require.NoError(t, err)
	defer merged.Close()

	notes, err := merged.GetAnnotations(info.ID)
	require.NoError(t, err)
	assert.Equal(t, Annotation{Status: StatusReject, Comment: "vendored"}, notes["lib/x.js"])
}
