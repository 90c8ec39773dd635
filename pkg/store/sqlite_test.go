package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

func TestSQLiteStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := NewSQLite(path)
	require.NoError(t, err)
	info := NewScanInfo("node_modules", "dir", nil)
	require.NoError(t, s.BeginScan(info))
	require.NoError(t, s.AddResult(info.ID, 0, sampleResults()[1]))
	info.Finish(&types.Report{TotalScanned: 4, FilesWithMatches: 1, TotalMatches: 1})
	require.NoError(t, s.FinishScan(info))
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	report, err := reopened.GetReport(info.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, report.TotalScanned)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "lib/x.js", report.Results[0].File)
}

func TestSQLiteStore_DuplicateResult(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer s.Close()

	info := NewScanInfo("d", "dir", nil)
	require.NoError(t, s.BeginScan(info))
	require.NoError(t, s.AddResult(info.ID, 0, sampleResults()[1]))
	assert.Error(t, s.AddResult(info.ID, 0, sampleResults()[1]))
}

func TestRestoreScalar(t *testing.T) {
	m, err := decodeMatch("r", "ns", `[]`, `{"n": 5, "f": 1.5, "s": "x", "b": true}`, `[]`)
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.Meta["n"])
	assert.Equal(t, "1.5", m.Meta["f"])
	assert.Equal(t, "x", m.Meta["s"])
	assert.Equal(t, true, m.Meta["b"])
	assert.NotNil(t, m.Tags)
	assert.NotNil(t, m.Strings)
}
