package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/yarascan/pkg/config"
	"github.com/praetorian-inc/yarascan/pkg/enum"
	"github.com/praetorian-inc/yarascan/pkg/output"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

// newScanCmd creates a fresh scan command for testing. Defining the flags
// again resets the flag variables to their defaults.
func newScanCmd(stdout, stderr *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "scan",
		Args:          cobra.NoArgs,
		RunE:          runScan,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addScanFlags(cmd.Flags())
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	configPath = ""
	logLevel = ""
	return cmd
}

func executeScan(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newScanCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunScan_RequiresInputOrDir(t *testing.T) {
	_, _, err := executeScan(t, "--no-bundled-rules")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --input or --dir must be specified")
}

func TestRunScan_InputAndDirExclusive(t *testing.T) {
	_, _, err := executeScan(t, "--input", "a.json", "--dir", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestRunScan_GitRequiresDir(t *testing.T) {
	_, _, err := executeScan(t, "--input", "a.json", "--git")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--git requires --dir")
}

func TestRunScan_NoRulesSpecified(t *testing.T) {
	_, _, err := executeScan(t, "--dir", t.TempDir(), "--no-bundled-rules")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitError, exitErr.Code)
	assert.ErrorIs(t, err, errNoRulesSpecified)
	assert.Equal(t, "No YARA rules specified", err.Error())
}

func TestRunScan_MissingRulesPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	_, stderr, err := executeScan(t, "--dir", t.TempDir(), "--no-bundled-rules", "--rules", missing)
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitError, exitErr.Code)
	assert.Contains(t, err.Error(), "Failed to load YARA rules")
	assert.Contains(t, stderr, "Rules path does not exist: "+missing)
	assert.Contains(t, stderr, "No YARA rules found")
}

func TestRunScan_InvalidOptions(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"format", []string{"--format", "xml"}, "unknown output format: xml"},
		{"fail-on", []string{"--fail-on", "severe"}, "invalid --fail-on"},
		{"annotations", []string{"--annotations", "jenkins"}, "invalid annotations mode"},
		{"color", []string{"--color", "rainbow"}, "invalid color mode"},
		{"output", []string{"--output", "s3://bucket-only"}, "invalid output destination"},
		{"timeout", []string{"--timeout", "0"}, "--timeout must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--dir", dir, "--no-bundled-rules"}, tt.args...)
			_, _, err := executeScan(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolveScanOptions_ConfigFallback(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := newScanCmd(&stdout, &stderr)
	require.NoError(t, cmd.ParseFlags([]string{"--dir", "src", "--format", "json"}))

	bundled := false
	cfg := &config.Config{
		Rules:        []string{"./custom"},
		BundledRules: &bundled,
		Include:      []string{"*.js"},
		Workers:      4,
		Timeout:      5,
		Format:       "sarif",
		FailOn:       "high",
		Annotations:  "github",
		Output:       "azblob://scans/out.json",
		S3:           config.S3{Region: "eu-west-1"},
	}

	opts, err := resolveScanOptions(cmd, cfg)
	require.NoError(t, err)

	// Flags set on the command line win.
	assert.Equal(t, "json", opts.format)
	assert.Equal(t, "src", opts.dir)

	// Everything else comes from the config file.
	assert.Equal(t, []string{"./custom"}, opts.rules)
	assert.False(t, opts.bundled)
	assert.Equal(t, []string{"*.js"}, opts.include)
	assert.Equal(t, 4, opts.workers)
	assert.Equal(t, "5s", opts.timeout.String())
	assert.True(t, opts.hasFailOn)
	assert.Equal(t, types.SeverityHigh, opts.failOn)
	assert.True(t, opts.annotations)
	assert.Equal(t, "azblob://scans/out.json", opts.output)
	assert.Equal(t, "eu-west-1", opts.s3.Region)
}

func TestResolveScanOptions_Defaults(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := newScanCmd(&stdout, &stderr)
	require.NoError(t, cmd.ParseFlags([]string{"--input", "results.json"}))

	opts, err := resolveScanOptions(cmd, nil)
	require.NoError(t, err)

	assert.True(t, opts.bundled)
	assert.Equal(t, "json", opts.format)
	assert.Equal(t, 1, opts.workers)
	assert.Equal(t, "1m0s", opts.timeout.String())
	assert.Equal(t, "HEAD", opts.gitRef)
	assert.False(t, opts.hasFailOn)
	assert.False(t, opts.annotations)
	assert.Empty(t, opts.output)
}

func TestResolveScanOptions_LegacyAnnotationsFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := newScanCmd(&stdout, &stderr)
	require.NoError(t, cmd.ParseFlags([]string{"--input", "r.json", "--github-annotations", "--no-bundled-rules"}))

	opts, err := resolveScanOptions(cmd, nil)
	require.NoError(t, err)
	assert.True(t, opts.annotations)
	assert.False(t, opts.bundled)
}

func TestCreateEnumerator(t *testing.T) {
	log := newLogger(&cobra.Command{}, nil)

	e, source, mode := createEnumerator(&scanOptions{input: "results.json"}, log)
	assert.IsType(t, &enum.ManifestEnumerator{}, e)
	assert.Equal(t, "results.json", source)
	assert.Equal(t, "manifest", mode)

	e, source, mode = createEnumerator(&scanOptions{dir: "src"}, log)
	assert.IsType(t, &enum.FilesystemEnumerator{}, e)
	assert.Equal(t, "src", source)
	assert.Equal(t, "dir", mode)

	e, source, mode = createEnumerator(&scanOptions{dir: "repo", git: true, gitRef: "main"}, log)
	require.IsType(t, &enum.GitEnumerator{}, e)
	assert.Equal(t, "main", e.(*enum.GitEnumerator).CommitRef)
	assert.Equal(t, "repo@main", source)
	assert.Equal(t, "git", mode)

	e, _, _ = createEnumerator(&scanOptions{dir: "src", archives: "all"}, log)
	assert.IsType(t, &enum.ArchiveExpander{}, e)
}

func TestWriteReport(t *testing.T) {
	r := types.NewReport()
	r.Add(types.Target{Kind: types.KindFile, Path: "a.js"}, []types.Match{types.NewMatch("Evil", "js")})

	t.Run("stdout", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		cmd := newScanCmd(&stdout, &stderr)

		err := writeReport(context.Background(), cmd, &scanOptions{format: "json"}, r, nil)
		require.NoError(t, err)
		assert.Contains(t, stdout.String(), `"totalScanned": 1`)
		assert.NotContains(t, stderr.String(), "Results written to")
	})

	t.Run("file", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		cmd := newScanCmd(&stdout, &stderr)
		path := filepath.Join(t.TempDir(), "yara.sarif")

		err := writeReport(context.Background(), cmd, &scanOptions{format: "sarif", output: path}, r, nil)
		require.NoError(t, err)
		assert.Empty(t, stdout.String())
		assert.Contains(t, stderr.String(), "\nResults written to: "+path+"\n")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"version": "2.1.0"`)
		assert.Contains(t, string(data), "js/Evil")
	})
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", contentType("json"))
	assert.Equal(t, "application/sarif+json", contentType("sarif"))
}

func TestS3Config(t *testing.T) {
	got := s3Config(&config.Config{S3: config.S3{Region: "us-west-2", Endpoint: "http://minio:9000", AccessKeyID: "id"}})
	assert.Equal(t, output.S3Config{Region: "us-west-2", Endpoint: "http://minio:9000", AccessKeyID: "id"}, got)
}
