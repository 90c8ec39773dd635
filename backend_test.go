//go:build (cgo && !noyara) || yargo

package yarascan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/yarascan/pkg/engine"
)

func TestNewScanner_CompilesRules(t *testing.T) {
	dir := t.TempDir()
	rule := `rule eval_atob
{
    meta:
        severity = "high"
    strings:
        $a = "eval(atob("
    condition:
        $a
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "js.yar"), []byte(rule), 0644))

	s, err := NewScanner(WithRulePaths(dir))
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, s.Namespaces(), 1)
	assert.Equal(t, "js", s.Namespaces()[0].Namespace)

	matches, err := s.ScanString(context.Background(), "x=eval(atob(y))")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "eval_atob", matches[0].Rule)
	assert.Equal(t, "high", matches[0].Severity())
}

func TestScanner_ScanAfterClose(t *testing.T) {
	dir := t.TempDir()
	rule := "rule marker { strings: $a = \"EVIL_MARKER\" condition: $a }\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.yar"), []byte(rule), 0644))

	s, err := NewScanner(WithRulePaths(dir))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.ScanString(context.Background(), "EVIL_MARKER")
	assert.ErrorIs(t, err, engine.ErrClosed)
}
