package types

import "fmt"

// TargetKind tracks where a scan target was discovered.
type TargetKind string

const (
	KindManifest TargetKind = "manifest"
	KindFile     TargetKind = "file"
	KindGit      TargetKind = "git"
	KindArchive  TargetKind = "archive"
)

// PackageRef is the manifest-declared identity of a target.
type PackageRef struct {
	Package string `json:"package"`
	Version string `json:"version"`
	SHA256  string `json:"sha256"`
	Type    string `json:"type"`
}

// Target is one unit of content to scan.
type Target struct {
	Kind TargetKind

	// Path is the path reported in results: the manifest entry as written,
	// or the path relative to the scan root.
	Path string

	// FullPath is the resolved filesystem path. Empty for in-memory targets.
	FullPath string

	// Package is set only for manifest targets.
	Package *PackageRef

	// Content holds the bytes of in-memory targets that are already loaded.
	Content []byte

	// Open produces the bytes of targets that do not live on disk (git
	// blobs, archive members) when they are scanned. It takes precedence
	// over Content.
	Open func() ([]byte, error)
}

// InMemory reports whether the target content comes from memory rather than
// a file.
func (t Target) InMemory() bool {
	return t.FullPath == "" && (t.Content != nil || t.Open != nil)
}

// Load returns the content of an in-memory target.
func (t Target) Load() ([]byte, error) {
	if t.Open != nil {
		return t.Open()
	}
	if t.Content != nil {
		return t.Content, nil
	}
	return nil, fmt.Errorf("%s: content not held in memory", t.Path)
}

// DisplayPath is the path used in progress and warning lines.
func (t Target) DisplayPath() string {
	if t.Kind == KindFile && t.FullPath != "" {
		return t.FullPath
	}
	return t.Path
}
