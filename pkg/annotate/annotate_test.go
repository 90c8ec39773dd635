package annotate

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

func env(vars map[string]string) LookupFunc {
	return func(k string) string { return vars[k] }
}

func matchWith(rule string, meta map[string]any) types.Match {
	m := types.NewMatch(rule, "ns")
	for k, v := range meta {
		m.Meta[k] = v
	}
	return m
}

func TestEmit(t *testing.T) {
	r := types.NewReport()
	r.Add(types.Target{
		Kind:    types.KindManifest,
		Path:    "evil/bin.node",
		Package: &types.PackageRef{Package: "evil", Version: "1.0.0"},
	}, []types.Match{
		matchWith("miner", map[string]any{"severity": "critical", "category": "malware", "description": "Coin miner"}),
		matchWith("packer", map[string]any{"severity": "medium", "category": "packer"}),
	})
	r.Add(types.Target{Kind: types.KindFile, Path: "lib/a.js"}, []types.Match{
		matchWith("suspicious", map[string]any{"severity": "high"}),
		matchWith("info_only", nil),
	})

	var buf bytes.Buffer
	high := Emit(&buf, r)

	assert.Equal(t, 2, high)
	assert.Equal(t, []string{
		"::error title=YARA CRITICAL - malware::evil: evil/bin.node - miner (Coin miner)",
		"::warning title=YARA MEDIUM - packer::evil: evil/bin.node - packer",
		"::error title=YARA HIGH - ::lib/a.js - suspicious",
		"::notice title=YARA UNKNOWN - ::lib/a.js - info_only",
	}, strings.Split(strings.TrimSpace(buf.String()), "\n"))
}

func TestEmit_Escaping(t *testing.T) {
	r := types.NewReport()
	r.Add(types.Target{Kind: types.KindFile, Path: "a.js"}, []types.Match{
		matchWith("r", map[string]any{"severity": "low", "category": "a:b,c", "description": "50%\nnext"}),
	})

	var buf bytes.Buffer
	Emit(&buf, r)
	assert.Equal(t, "::notice title=YARA LOW - a%3Ab%2Cc::a.js - r (50%25%0Anext)\n", buf.String())
}

func TestEmit_SeverityIsCaseSensitive(t *testing.T) {
	r := types.NewReport()
	r.Add(types.Target{Kind: types.KindFile, Path: "a.js"}, []types.Match{
		matchWith("shouty", map[string]any{"severity": "High"}),
		matchWith("padded", map[string]any{"severity": " critical"}),
	})

	var buf bytes.Buffer
	high := Emit(&buf, r)

	assert.Equal(t, 0, high)
	assert.Equal(t, []string{
		"::notice title=YARA HIGH - ::a.js - shouty",
		"::notice title=YARA  CRITICAL - ::a.js - padded",
	}, strings.Split(strings.TrimSpace(buf.String()), "\n"))
}

func TestEmit_Empty(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 0, Emit(&buf, types.NewReport()))
	assert.Empty(t, buf.String())
}

func TestWriteOutputs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOutputs(&buf, 3, 1, env(nil)))
	assert.Equal(t, "\nyara-matches=3\nyara-high-severity=1\n", buf.String())
}

func TestWriteOutputs_GitHubOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.WriteFile(path, []byte("existing=1\n"), 0644))

	var buf bytes.Buffer
	require.NoError(t, WriteOutputs(&buf, 2, 0, env(map[string]string{"GITHUB_OUTPUT": path})))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing=1\nyara-matches=2\nyara-high-severity=0\n", string(data))
}

func TestDetect(t *testing.T) {
	assert.Equal(t, CIGitHub, Detect(env(map[string]string{"GITHUB_ACTIONS": "true"})))
	assert.Equal(t, CIGitLab, Detect(env(map[string]string{"GITLAB_CI": "true"})))
	assert.Equal(t, CIUnknown, Detect(env(nil)))
}

func TestEnabled(t *testing.T) {
	gh := env(map[string]string{"GITHUB_ACTIONS": "true"})

	tests := []struct {
		name     string
		mode     string
		legacy   bool
		lookup   LookupFunc
		expected bool
	}{
		{"legacy flag wins", ModeNone, true, env(nil), true},
		{"github forced", ModeGitHub, false, env(nil), true},
		{"none", ModeNone, false, gh, false},
		{"auto in github", ModeAuto, false, gh, true},
		{"auto elsewhere", ModeAuto, false, env(nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Enabled(tt.mode, tt.legacy, tt.lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := Enabled("bogus", false, env(nil))
	assert.Error(t, err)
}

func TestCIKind(t *testing.T) {
	assert.Equal(t, "github", CIGitHub.String())
	assert.Equal(t, "unknown", CIUnknown.String())

	k, err := ParseCIKind(" GitLab ")
	require.NoError(t, err)
	assert.Equal(t, CIGitLab, k)

	_, err = ParseCIKind("jenkins")
	assert.Error(t, err)
}
