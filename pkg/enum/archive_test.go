package enum

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

type member struct {
	name    string
	content string
}

func buildZip(t *testing.T, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildTar(t *testing.T, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "dir/", Typeflag: tar.TypeDir, Mode: 0755}))
	for _, m := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     m.name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(m.content)),
		}))
		_, err := tw.Write([]byte(m.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func memberNames(members []ExtractedMember) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Name)
	}
	return out
}

func TestExtractMembers(t *testing.T) {
	members := []member{{"a.js", "alpha"}, {"dir/b.js", "beta"}}

	tests := []struct {
		name    string
		kind    string
		content []byte
	}{
		{"zip", "zip", buildZip(t, members)},
		{"jar", "jar", buildZip(t, members)},
		{"tar", "tar", buildTar(t, members)},
		{"tgz", "tgz", gzipBytes(t, buildTar(t, members))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractMembers(tt.kind, tt.content, ExtractLimits{})
			require.NoError(t, err)
			assert.Equal(t, []string{"a.js", "dir/b.js"}, memberNames(got))
			assert.Equal(t, "alpha", string(got[0].Content))
		})
	}
}

func TestExtractMembers_Limits(t *testing.T) {
	content := buildZip(t, []member{{"a", "1"}, {"big", "0123456789"}, {"c", "3"}, {"d", "4"}})

	got, err := ExtractMembers("zip", content, ExtractLimits{MaxMemberSize: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, memberNames(got))

	got, err = ExtractMembers("zip", content, ExtractLimits{MaxMembers: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "big"}, memberNames(got))

	got, err = ExtractMembers("zip", content, ExtractLimits{MaxTotalSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, memberNames(got))
}

func TestExtractMembers_Invalid(t *testing.T) {
	_, err := ExtractMembers("zip", []byte("not a zip"), ExtractLimits{})
	assert.ErrorContains(t, err, "failed to open zip")

	_, err = ExtractMembers("7z", []byte("not a 7z"), ExtractLimits{})
	assert.ErrorContains(t, err, "failed to open 7z")

	_, err = ExtractMembers("tgz", []byte("not gzip"), ExtractLimits{})
	assert.Error(t, err)

	_, err = ExtractMembers("rar", nil, ExtractLimits{})
	assert.ErrorContains(t, err, "unsupported archive type")
}

func TestArchiveKind(t *testing.T) {
	tests := map[string]string{
		"a.zip":    "zip",
		"A.JAR":    "jar",
		"x.war":    "jar",
		"b.7z":     "7z",
		"c.tar":    "tar",
		"d.tar.gz": "tgz",
		"e.tgz":    "tgz",
		"f.js":     "",
		"no_ext":   "",
	}
	for path, expected := range tests {
		assert.Equal(t, expected, ArchiveKind(path), path)
	}
}

func TestParseFormats(t *testing.T) {
	assert.Empty(t, parseFormats(""))
	assert.Equal(t, map[string]bool{"zip": true, "tgz": true}, parseFormats("zip, tar.gz"))
	assert.Len(t, parseFormats("all"), 5)
}

// staticEnumerator returns a fixed target list.
type staticEnumerator []types.Target

func (s staticEnumerator) Enumerate(ctx context.Context) ([]types.Target, error) {
	return s, nil
}

func TestArchiveExpander(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.zip")
	require.NoError(t, os.WriteFile(archive, buildZip(t, []member{{"inner.js", "payload"}}), 0644))
	plain := filepath.Join(dir, "plain.js")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0644))

	pkg := &types.PackageRef{Package: "p", Version: "1"}
	inner := staticEnumerator{
		{Kind: types.KindManifest, Path: "bundle.zip", FullPath: archive, Package: pkg},
		{Kind: types.KindFile, Path: "plain.js", FullPath: plain},
		{Kind: types.KindFile, Path: "missing.zip", FullPath: filepath.Join(dir, "missing.zip")},
	}

	targets, err := NewArchiveExpander(inner, "zip", ExtractLimits{}).Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 4)

	assert.Equal(t, "bundle.zip", targets[0].Path)
	member := targets[1]
	assert.Equal(t, types.KindArchive, member.Kind)
	assert.Equal(t, "bundle.zip!inner.js", member.Path)
	assert.Same(t, pkg, member.Package)
	assert.Empty(t, member.FullPath)
	assert.Nil(t, member.Content)
	assert.True(t, member.InMemory())
	data, err := member.Load()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, "plain.js", targets[2].Path)
	assert.Equal(t, "missing.zip", targets[3].Path)
}

func TestListMembers_MatchesExtraction(t *testing.T) {
	content := buildZip(t, []member{{"a", "1"}, {"big", "0123456789"}, {"c", "3"}, {"d", "4"}})

	for _, limits := range []ExtractLimits{{}, {MaxMemberSize: 5}, {MaxMembers: 2}, {MaxTotalSize: 2}} {
		extracted, err := ExtractMembers("zip", content, limits)
		require.NoError(t, err)
		listed, err := ListMembers("zip", content, limits)
		require.NoError(t, err)
		assert.Equal(t, memberNames(extracted), listed, "limits %+v", limits)
	}

	tgz := gzipBytes(t, buildTar(t, []member{{"x.js", "x"}, {"y.js", "yy"}}))
	listed, err := ListMembers("tgz", tgz, ExtractLimits{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x.js", "y.js"}, listed)
}

func TestArchiveExpander_ExtractsOnFirstOpen(t *testing.T) {
	archive := buildZip(t, []member{{"one.js", "1"}, {"two.js", "2"}})
	loads := 0
	inner := staticEnumerator{{
		Kind: types.KindGit,
		Path: "vendor.zip",
		Open: func() ([]byte, error) {
			loads++
			return archive, nil
		},
	}}

	targets, err := NewArchiveExpander(inner, "zip", ExtractLimits{}).Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 3)
	assert.Equal(t, 1, loads, "listing reads the archive once")

	two, err := targets[2].Load()
	require.NoError(t, err)
	assert.Equal(t, "2", string(two))
	one, err := targets[1].Load()
	require.NoError(t, err)
	assert.Equal(t, "1", string(one))
	assert.Equal(t, 2, loads, "members share one extraction")

	_, err = targets[1].Load()
	assert.ErrorContains(t, err, "no longer available")
}

func TestArchiveExpander_ExtractionError(t *testing.T) {
	archive := buildZip(t, []member{{"one.js", "1"}})
	calls := 0
	inner := staticEnumerator{{
		Kind: types.KindGit,
		Path: "gone.zip",
		Open: func() ([]byte, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("blob vanished")
			}
			return archive, nil
		},
	}}

	targets, err := NewArchiveExpander(inner, "zip", ExtractLimits{}).Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 2)

	_, err = targets[1].Load()
	assert.ErrorContains(t, err, "blob vanished")
}

func TestArchiveExpander_FormatNotSelected(t *testing.T) {
	inner := staticEnumerator{
		{Kind: types.KindGit, Path: "a.zip", Content: buildZip(t, []member{{"x", "y"}})},
	}
	targets, err := NewArchiveExpander(inner, "tar", ExtractLimits{}).Enumerate(context.Background())
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestArchiveExpander_OnError(t *testing.T) {
	inner := staticEnumerator{
		{Kind: types.KindGit, Path: "broken.zip", Content: []byte("garbage")},
	}
	var reported []string
	e := NewArchiveExpander(inner, "all", ExtractLimits{})
	e.OnError = func(path string, err error) {
		reported = append(reported, path)
	}

	targets, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Len(t, targets, 1)
	assert.Equal(t, []string{"broken.zip"}, reported)
}

func TestCollector_ReadEnforcesSize(t *testing.T) {
	c := newCollector(ExtractLimits{MaxMemberSize: 3})
	_, err := c.read(bytes.NewReader([]byte("abcdef")))
	assert.True(t, errors.Is(err, ErrMemberTooLarge))

	data, err := c.read(bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}
