//go:build wasm

package main

import (
	"context"
	"encoding/json"
	"sync"
	"syscall/js"

	"github.com/praetorian-inc/yarascan/pkg/engine"
	"github.com/praetorian-inc/yarascan/pkg/scanner"
)

var (
	scanners   = make(map[int]*scanner.Core)
	scannersMu sync.RWMutex
	nextID     int
)

func errorResult(msg string) map[string]interface{} {
	return map[string]interface{}{"error": msg}
}

func lookup(handle int) (*scanner.Core, bool) {
	scannersMu.RLock()
	defer scannersMu.RUnlock()
	core, ok := scanners[handle]
	return core, ok
}

func marshalResult(v any) interface{} {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult("failed to marshal results: " + err.Error())
	}
	return string(jsonBytes)
}

// newScanner compiles the rule files and directories in rulePathsJSON.
// JS: YarascanNewScanner(rulePathsJSON) -> {handle} or {error}
func newScanner(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("rulePathsJSON argument required")
	}

	var paths []string
	if err := json.Unmarshal([]byte(args[0].String()), &paths); err != nil {
		return errorResult("failed to parse rule paths JSON: " + err.Error())
	}

	core, err := scanner.NewCore(scanner.CoreConfig{RulePaths: paths}, nil)
	if err != nil {
		return errorResult("failed to create scanner: " + err.Error())
	}

	scannersMu.Lock()
	id := nextID
	nextID++
	scanners[id] = core
	scannersMu.Unlock()

	return map[string]interface{}{"handle": id}
}

// scan scans a single content string.
// JS: YarascanScan(handle, content, source) -> JSON result or {error}
func scan(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("handle and content arguments required")
	}

	core, ok := lookup(args[0].Int())
	if !ok {
		return errorResult("invalid scanner handle")
	}
	source := ""
	if len(args) > 2 {
		source = args[2].String()
	}

	result, err := core.Scan(context.Background(), args[1].String(), source)
	if err != nil {
		return errorResult("scan failed: " + err.Error())
	}
	return marshalResult(result)
}

// scanBatch scans multiple content items.
// JS: YarascanScanBatch(handle, itemsJSON) -> JSON results or {error}
func scanBatch(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("handle and itemsJSON arguments required")
	}

	core, ok := lookup(args[0].Int())
	if !ok {
		return errorResult("invalid scanner handle")
	}

	var items []scanner.ContentItem
	if err := json.Unmarshal([]byte(args[1].String()), &items); err != nil {
		return errorResult("failed to parse items JSON: " + err.Error())
	}

	batch, err := core.ScanBatch(context.Background(), items)
	if err != nil {
		return errorResult("batch scan failed: " + err.Error())
	}
	return marshalResult(batch)
}

// namespaces lists the compiled rule sources of a scanner.
// JS: YarascanNamespaces(handle) -> JSON array or {error}
func namespaces(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("handle argument required")
	}
	core, ok := lookup(args[0].Int())
	if !ok {
		return errorResult("invalid scanner handle")
	}
	return marshalResult(core.Namespaces())
}

// closeScanner closes a scanner and releases resources.
// JS: YarascanCloseScanner(handle)
func closeScanner(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("handle argument required")
	}

	handle := args[0].Int()

	scannersMu.Lock()
	core, ok := scanners[handle]
	if ok {
		delete(scanners, handle)
	}
	scannersMu.Unlock()

	if !ok {
		return errorResult("invalid scanner handle")
	}
	core.Close()
	return nil
}

// backend names the compiled-in YARA engine.
// JS: YarascanBackend() -> string
func backend(this js.Value, args []js.Value) interface{} {
	return engine.Backend
}
