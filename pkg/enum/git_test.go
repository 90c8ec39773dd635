package enum

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// commitFiles writes files into a fresh repository and commits them.
func commitFiles(t *testing.T, files map[string]string) (string, *git.Repository) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, repo
}

func gitPaths(targets []types.Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Path)
	}
	return out
}

func TestGitEnumerator(t *testing.T) {
	dir, _ := commitFiles(t, map[string]string{
		"file1.txt":        "hello from git",
		"subdir/nested.js": "nested content",
		".github/ci.yml":   "on: push",
	})

	targets, err := NewGitEnumerator(Config{Root: dir}).Enumerate(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"file1.txt", "subdir/nested.js", ".github/ci.yml"}, gitPaths(targets))
	for _, tg := range targets {
		assert.Equal(t, types.KindGit, tg.Kind)
		assert.True(t, tg.InMemory())
		assert.Nil(t, tg.Content)
		if tg.Path == "file1.txt" {
			data, err := tg.Load()
			require.NoError(t, err)
			assert.Equal(t, "hello from git", string(data))
		}
	}
}

func TestGitEnumerator_ContentReadOnOpen(t *testing.T) {
	dir, repo := commitFiles(t, map[string]string{"a.js": "first"})
	head, err := repo.Head()
	require.NoError(t, err)

	e := NewGitEnumerator(Config{Root: dir})
	e.CommitRef = head.Hash().String()
	targets, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 1)

	// A later commit must not change what the pinned revision yields.
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte("second"), 0644))
	_, err = wt.Add("a.js")
	require.NoError(t, err)
	_, err = wt.Commit("second", &git.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	data, err := targets[0].Load()
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestGitEnumerator_Filters(t *testing.T) {
	dir, _ := commitFiles(t, map[string]string{
		"a.js":         "a",
		"lib/b.js":     "b",
		"c.txt":        "c",
		".hidden/d.js": "d",
		"big.js":       "0123456789",
	})

	e := NewGitEnumerator(Config{Root: dir, Include: []string{"*.js"}, SkipHidden: true, MaxFileSize: 5})
	targets, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.js", "lib/b.js"}, gitPaths(targets))
}

func TestGitEnumerator_Ref(t *testing.T) {
	dir, repo := commitFiles(t, map[string]string{"first.txt": "1"})
	head, err := repo.Head()
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "second.txt"), []byte("2"), 0644))
	_, err = wt.Add("second.txt")
	require.NoError(t, err)
	_, err = wt.Commit("second", &git.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	e := NewGitEnumerator(Config{Root: dir})
	targets, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Len(t, targets, 2)

	e.CommitRef = head.Hash().String()
	targets, err = e.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first.txt"}, gitPaths(targets))
}

func TestGitEnumerator_Errors(t *testing.T) {
	_, err := NewGitEnumerator(Config{Root: t.TempDir()}).Enumerate(context.Background())
	assert.ErrorContains(t, err, "failed to open git repository")

	dir, _ := commitFiles(t, map[string]string{"a.txt": "a"})
	e := NewGitEnumerator(Config{Root: dir})
	e.CommitRef = "does-not-exist"
	_, err = e.Enumerate(context.Background())
	assert.ErrorContains(t, err, "failed to resolve ref")
}

func TestHasHiddenElement(t *testing.T) {
	assert.True(t, hasHiddenElement(".env"))
	assert.True(t, hasHiddenElement("a/.git/config"))
	assert.False(t, hasHiddenElement("a/b/c.js"))
}
