//go:build wasm

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall/js"
	"testing"

	"github.com/praetorian-inc/yarascan/pkg/scanner"
	"github.com/praetorian-inc/yarascan/pkg/types"
)

const markerRule = `rule marker {
	meta:
		severity = "high"
	strings:
		$a = "EVIL_MARKER"
	condition:
		$a
}
`

// newTestScanner compiles markerRule and returns the scanner handle.
func newTestScanner(t *testing.T) int {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.yar"), []byte(markerRule), 0o644); err != nil {
		t.Fatalf("writing rule: %v", err)
	}

	pathsJSON, _ := json.Marshal([]string{dir})
	result := newScanner(js.Value{}, []js.Value{js.ValueOf(string(pathsJSON))})

	resultMap, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected map result, got %T", result)
	}
	if errMsg, hasError := resultMap["error"]; hasError {
		t.Fatalf("Failed to create scanner: %v", errMsg)
	}
	handle := resultMap["handle"].(int)
	t.Cleanup(func() { closeScanner(js.Value{}, []js.Value{js.ValueOf(handle)}) })
	return handle
}

func TestScannerCreation_BadJSON(t *testing.T) {
	result := newScanner(js.Value{}, []js.Value{js.ValueOf("not json")})
	resultMap, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected map result, got %T", result)
	}
	if _, hasError := resultMap["error"]; !hasError {
		t.Error("Expected error for malformed rule paths")
	}
}

func TestScannerCreation_MissingRules(t *testing.T) {
	result := newScanner(js.Value{}, []js.Value{js.ValueOf(`["/nonexistent/rules"]`)})
	resultMap := result.(map[string]interface{})
	if _, hasError := resultMap["error"]; !hasError {
		t.Error("Expected error for missing rules")
	}
}

func TestScanContent(t *testing.T) {
	handle := newTestScanner(t)

	resultStr := scan(js.Value{}, []js.Value{
		js.ValueOf(handle),
		js.ValueOf("prefix EVIL_MARKER suffix"),
		js.ValueOf("test-source"),
	})

	jsonStr, ok := resultStr.(string)
	if !ok {
		t.Fatalf("Expected string result, got %T: %v", resultStr, resultStr)
	}

	var result scanner.ScanResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	if len(result.Matches) != 1 || result.Matches[0].Rule != "marker" {
		t.Fatalf("Expected one marker match, got %+v", result.Matches)
	}
	if result.Source != "test-source" {
		t.Errorf("Expected source 'test-source', got %q", result.Source)
	}
	if got := result.Matches[0].Strings; len(got) != 1 || got[0].Offset != 7 {
		t.Errorf("Expected $a at offset 7, got %+v", got)
	}
}

func TestScanBatch(t *testing.T) {
	handle := newTestScanner(t)

	items := []scanner.ContentItem{
		{Source: "script:inline:1", Content: "EVIL_MARKER"},
		{Source: "script:inline:2", Content: "nothing here"},
		{Source: "storage:local:config", Content: `{"x": "EVIL_MARKER"}`},
	}
	itemsJSON, _ := json.Marshal(items)

	resultStr := scanBatch(js.Value{}, []js.Value{
		js.ValueOf(handle),
		js.ValueOf(string(itemsJSON)),
	})
	jsonStr, ok := resultStr.(string)
	if !ok {
		t.Fatalf("Expected string result, got %T: %v", resultStr, resultStr)
	}

	var result scanner.BatchScanResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Expected 2 total matches, got %d", result.Total)
	}
	if len(result.Results) != 3 {
		t.Errorf("Expected 3 result items, got %d", len(result.Results))
	}
}

func TestNamespaces(t *testing.T) {
	handle := newTestScanner(t)

	jsonStr, ok := namespaces(js.Value{}, []js.Value{js.ValueOf(handle)}).(string)
	if !ok {
		t.Fatal("Expected string result")
	}
	var sources []types.RuleSource
	if err := json.Unmarshal([]byte(jsonStr), &sources); err != nil {
		t.Fatalf("Failed to parse namespaces: %v", err)
	}
	if len(sources) != 1 || sources[0].Namespace != "marker" {
		t.Errorf("Expected namespace marker, got %+v", sources)
	}
}

func TestCloseScanner(t *testing.T) {
	handle := newTestScanner(t)

	if closeResult := closeScanner(js.Value{}, []js.Value{js.ValueOf(handle)}); closeResult != nil {
		t.Fatalf("Close failed: %v", closeResult)
	}

	scanResult := scan(js.Value{}, []js.Value{js.ValueOf(handle), js.ValueOf("test")})
	errMap, ok := scanResult.(map[string]interface{})
	if !ok {
		t.Fatal("Expected error when using closed scanner")
	}
	if _, hasError := errMap["error"]; !hasError {
		t.Error("Expected error when using closed scanner")
	}
}

func TestInvalidHandle(t *testing.T) {
	result := scan(js.Value{}, []js.Value{
		js.ValueOf(99999),
		js.ValueOf("test"),
	})

	errMap, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected error map, got %T", result)
	}
	if _, hasError := errMap["error"]; !hasError {
		t.Error("Expected error for invalid handle")
	}
}

func TestBackend(t *testing.T) {
	if got := backend(js.Value{}, nil); got == "" {
		t.Error("Expected backend name")
	}
}
