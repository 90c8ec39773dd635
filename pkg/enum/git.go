package enum

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// GitEnumerator enumerates the files of one tree in a git repository.
type GitEnumerator struct {
	config Config
	// CommitRef optionally specifies a specific revision to enumerate (defaults to HEAD)
	CommitRef string
}

// NewGitEnumerator creates a new git enumerator.
func NewGitEnumerator(config Config) *GitEnumerator {
	return &GitEnumerator{
		config:    config,
		CommitRef: "HEAD",
	}
}

// Enumerate lists the files of the tree at CommitRef. Blob content is read
// only when a target is opened.
func (e *GitEnumerator) Enumerate(ctx context.Context) ([]types.Target, error) {
	repo, err := git.PlainOpen(e.config.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	rev := e.CommitRef
	if rev == "" {
		rev = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ref %s: %w", rev, err)
	}

	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	blobs := &blobReader{repo: repo}
	var targets []types.Target
	err = tree.Files().ForEach(func(f *object.File) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !e.wanted(f) {
			return nil
		}

		targets = append(targets, types.Target{
			Kind: types.KindGit,
			Path: f.Name,
			Open: blobs.opener(f.Name, f.Hash),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk tree: %w", err)
	}

	return targets, nil
}

// wanted applies the size, hidden and include filters to a tree entry.
func (e *GitEnumerator) wanted(f *object.File) bool {
	if e.config.MaxFileSize > 0 && f.Size > e.config.MaxFileSize {
		return false
	}
	if e.config.SkipHidden && hasHiddenElement(f.Name) {
		return false
	}
	if len(e.config.Include) == 0 {
		return true
	}
	for _, pattern := range e.config.Include {
		if ok, _ := doublestar.Match("**/"+pattern, f.Name); ok {
			return true
		}
	}
	return false
}

// blobReader reads blobs for scan workers. Object storage reads are
// serialized.
type blobReader struct {
	mu   sync.Mutex
	repo *git.Repository
}

func (b *blobReader) opener(name string, hash plumbing.Hash) func() ([]byte, error) {
	return func() ([]byte, error) {
		b.mu.Lock()
		defer b.mu.Unlock()

		blob, err := b.repo.BlobObject(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to get contents of %s: %w", name, err)
		}
		r, err := blob.Reader()
		if err != nil {
			return nil, fmt.Errorf("failed to get contents of %s: %w", name, err)
		}
		defer r.Close()
		return io.ReadAll(r)
	}
}

// hasHiddenElement reports whether any element of a slash path is hidden.
func hasHiddenElement(p string) bool {
	for p != "" && p != "." && p != "/" {
		if isHidden(path.Base(p)) {
			return true
		}
		p = path.Dir(p)
	}
	return false
}
