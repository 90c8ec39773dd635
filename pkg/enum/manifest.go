package enum

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

const unknown = "unknown"

// Manifest lists the packages and files to scan.
type Manifest struct {
	Packages []ManifestPackage `json:"packages" yaml:"packages"`
}

// ManifestPackage is one package entry in a manifest.
type ManifestPackage struct {
	Package string         `json:"package" yaml:"package"`
	Version string         `json:"version" yaml:"version"`
	Files   []ManifestFile `json:"files" yaml:"files"`
}

// ManifestFile is one declared file of a package.
type ManifestFile struct {
	File   string `json:"file" yaml:"file"`
	SHA256 string `json:"sha256" yaml:"sha256"`
	Type   string `json:"type" yaml:"type"`
}

// ManifestEnumerator yields the files declared in a manifest.
type ManifestEnumerator struct {
	path string
}

// NewManifestEnumerator creates an enumerator for the manifest at path.
func NewManifestEnumerator(path string) *ManifestEnumerator {
	return &ManifestEnumerator{path: path}
}

// LoadManifest parses a JSON or YAML manifest, chosen by file extension.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	}
	return &m, nil
}

// Enumerate returns one target per declared file, in manifest order.
// Existence is not checked here.
func (e *ManifestEnumerator) Enumerate(ctx context.Context) ([]types.Target, error) {
	m, err := LoadManifest(e.path)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(e.path)
	var targets []types.Target
	for _, pkg := range m.Packages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := orDefault(pkg.Package, unknown)
		version := orDefault(pkg.Version, unknown)
		for _, f := range pkg.Files {
			targets = append(targets, types.Target{
				Kind:     types.KindManifest,
				Path:     f.File,
				FullPath: ResolveManifestPath(base, f.File),
				Package: &types.PackageRef{
					Package: name,
					Version: version,
					SHA256:  f.SHA256,
					Type:    f.Type,
				},
			})
		}
	}
	return targets, nil
}

// ResolveManifestPath maps a manifest file entry to a filesystem path.
// Absolute entries are used as written. Entries already rooted at
// node_modules/ resolve against base; all others resolve against
// base/node_modules.
func ResolveManifestPath(base, file string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	if strings.HasPrefix(file, "node_modules/") {
		return filepath.Join(base, filepath.FromSlash(file))
	}
	return filepath.Join(base, "node_modules", filepath.FromSlash(file))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
