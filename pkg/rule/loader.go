package rule

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

// ErrNoRules is returned when rule resolution finds no rule files.
var ErrNoRules = errors.New("no YARA rules found")

// Extensions recognized as rule files, in directory scan order.
var Extensions = []string{".yar", ".yara"}

// Namespaces is an insertion-ordered namespace -> rule file mapping.
// Setting an existing namespace keeps its position and replaces the path.
type Namespaces struct {
	order []string
	paths map[string]string
}

// NewNamespaces creates an empty mapping.
func NewNamespaces() *Namespaces {
	return &Namespaces{paths: make(map[string]string)}
}

// Set maps namespace to path.
func (n *Namespaces) Set(namespace, path string) {
	if _, ok := n.paths[namespace]; !ok {
		n.order = append(n.order, namespace)
	}
	n.paths[namespace] = path
}

// Get returns the path for namespace.
func (n *Namespaces) Get(namespace string) (string, bool) {
	p, ok := n.paths[namespace]
	return p, ok
}

// Len returns the number of namespaces.
func (n *Namespaces) Len() int {
	return len(n.order)
}

// Sources returns the mapping in insertion order.
func (n *Namespaces) Sources() []types.RuleSource {
	out := make([]types.RuleSource, 0, len(n.order))
	for _, ns := range n.order {
		out = append(out, types.RuleSource{Namespace: ns, Path: n.paths[ns]})
	}
	return out
}

// Loader resolves rule paths into namespaces.
type Loader struct {
	log hclog.Logger
}

// NewLoader creates a loader. A nil logger discards warnings.
func NewLoader(log hclog.Logger) *Loader {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Loader{log: log}
}

// Resolve maps every rule file reachable from paths to a namespace derived
// from its file stem. Directories are scanned one level deep. Later
// duplicates overwrite earlier ones, so user rules shadow bundled rules with
// the same base name. Missing paths are warned about and skipped.
func (l *Loader) Resolve(paths []string) (*Namespaces, error) {
	ns := NewNamespaces()

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			l.log.Warn(fmt.Sprintf("Rules path does not exist: %s", p))
			continue
		}

		if !info.IsDir() {
			if !IsRuleFile(p) {
				l.log.Debug("ignoring non-rule file", "path", p)
				continue
			}
			ns.Set(Stem(p), p)
			continue
		}

		files, err := ruleFilesInDir(p)
		if err != nil {
			return nil, fmt.Errorf("reading rules directory %s: %w", p, err)
		}
		for _, f := range files {
			ns.Set(Stem(f), f)
		}
	}

	if ns.Len() == 0 {
		l.log.Warn("No YARA rules found")
		return ns, ErrNoRules
	}
	return ns, nil
}

// IsRuleFile reports whether path has a rule file extension.
func IsRuleFile(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Stem returns the file name without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ruleFilesInDir lists *.yar files then *.yara files directly inside dir,
// each group sorted by name.
func ruleFilesInDir(dir string) ([]string, error) {
	var out []string
	for _, ext := range Extensions {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// BundledDir returns the bundled rules directory: override when set,
// otherwise "rules" next to the running executable.
func BundledDir(override string) string {
	if override != "" {
		return override
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), "rules")
}

// CollectPaths builds the ordered rule path list: the bundled directory
// first (when enabled and present), then user paths in the order given.
func CollectPaths(userPaths []string, bundled bool, bundledDir string) []string {
	paths := make([]string, 0, len(userPaths)+1)
	if bundled && bundledDir != "" {
		if info, err := os.Stat(bundledDir); err == nil && info.IsDir() {
			paths = append(paths, bundledDir)
		}
	}
	return append(paths, userPaths...)
}
