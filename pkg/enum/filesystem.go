package enum

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// FilesystemEnumerator enumerates files below a directory.
type FilesystemEnumerator struct {
	config Config
}

// NewFilesystemEnumerator creates a new filesystem enumerator.
func NewFilesystemEnumerator(config Config) *FilesystemEnumerator {
	return &FilesystemEnumerator{config: config}
}

// candidate is an eligible file found during the walk.
type candidate struct {
	rel  string // slash-separated, relative to root
	full string
}

// Enumerate walks the root and returns every eligible file.
// Phase 1: walk the tree and collect eligible files in lexical order.
// Phase 2: apply include patterns in pattern order, de-duplicating.
func (e *FilesystemEnumerator) Enumerate(ctx context.Context) ([]types.Target, error) {
	info, err := os.Stat(e.config.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", e.config.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", e.config.Root)
	}

	for _, p := range e.config.Include {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern %q", p)
		}
	}

	// Load .gitignore patterns if requested and present
	var ignore *gitignore.GitIgnore
	if e.config.RespectGitignore {
		gitignorePath := filepath.Join(e.config.Root, ".gitignore")
		if _, err := os.Stat(gitignorePath); err == nil {
			ignore, err = gitignore.CompileIgnoreFile(gitignorePath)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", gitignorePath, err)
			}
		}
	}

	// WalkDir does not descend into a symlinked root.
	walkRoot, err := filepath.EvalSymlinks(e.config.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", e.config.Root, err)
	}

	candidates, err := e.walk(ctx, walkRoot, ignore)
	if err != nil {
		return nil, err
	}

	return e.selectTargets(candidates), nil
}

// walk visits walkRoot, the resolved Root. Full paths stay under Root as the
// caller spelled it.
func (e *FilesystemEnumerator) walk(ctx context.Context, walkRoot string, ignore *gitignore.GitIgnore) ([]candidate, error) {
	var files []candidate
	err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == walkRoot {
			return nil
		}

		rel, err := filepath.Rel(walkRoot, path)
		if err != nil {
			return err
		}

		if d.IsDir() {
			if e.config.SkipHidden && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			if ignore != nil && ignore.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if e.config.SkipHidden && isHidden(d.Name()) {
			return nil
		}

		// os.Stat follows symlinks: a link to a regular file counts, a link
		// to a directory or a dangling link does not.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}

		if e.config.MaxFileSize > 0 && info.Size() > e.config.MaxFileSize {
			return nil
		}

		if ignore != nil && ignore.MatchesPath(rel) {
			return nil
		}

		files = append(files, candidate{rel: filepath.ToSlash(rel), full: filepath.Join(e.config.Root, rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", e.config.Root, err)
	}
	return files, nil
}

// selectTargets applies the include patterns. Each pattern behaves like a
// recursive glob: "*.js" matches "a.js" and "lib/b.js".
func (e *FilesystemEnumerator) selectTargets(candidates []candidate) []types.Target {
	if len(e.config.Include) == 0 {
		targets := make([]types.Target, 0, len(candidates))
		for _, c := range candidates {
			targets = append(targets, fileTarget(c))
		}
		return targets
	}

	seen := make(map[string]bool, len(candidates))
	targets := make([]types.Target, 0)
	for _, pattern := range e.config.Include {
		recursive := "**/" + filepath.ToSlash(pattern)
		for _, c := range candidates {
			if seen[c.rel] {
				continue
			}
			if ok, _ := doublestar.Match(recursive, c.rel); ok {
				seen[c.rel] = true
				targets = append(targets, fileTarget(c))
			}
		}
	}
	return targets
}

func fileTarget(c candidate) types.Target {
	return types.Target{
		Kind:     types.KindFile,
		Path:     filepath.FromSlash(c.rel),
		FullPath: c.full,
	}
}
