//go:build wasm

package main

import (
	"syscall/js"
)

func main() {
	// Export functions to JavaScript
	js.Global().Set("YarascanNewScanner", js.FuncOf(newScanner))
	js.Global().Set("YarascanScan", js.FuncOf(scan))
	js.Global().Set("YarascanScanBatch", js.FuncOf(scanBatch))
	js.Global().Set("YarascanNamespaces", js.FuncOf(namespaces))
	js.Global().Set("YarascanCloseScanner", js.FuncOf(closeScanner))
	js.Global().Set("YarascanBackend", js.FuncOf(backend))

	// Keep WASM running
	<-make(chan struct{})
}
