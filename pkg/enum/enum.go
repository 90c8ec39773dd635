package enum

import (
	"context"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// Enumerator discovers the targets to scan.
type Enumerator interface {
	// Enumerate returns targets in scan order.
	Enumerate(ctx context.Context) ([]types.Target, error)
}

// Config for filesystem and git enumeration.
type Config struct {
	// Root is the starting path for enumeration.
	Root string

	// Include holds glob patterns; each matches at any depth below Root.
	// Empty means every file.
	Include []string

	// SkipHidden skips files and directories whose name starts with ".".
	SkipHidden bool

	// RespectGitignore applies Root/.gitignore.
	RespectGitignore bool

	// MaxFileSize is the maximum file size to return (0 = no limit).
	MaxFileSize int64
}

// isHidden checks if a filename is hidden (starts with .).
// The special entries "." and ".." are NOT considered hidden.
func isHidden(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return len(name) > 0 && name[0] == '.'
}
