//go:build js && wasm

// Command wasm exposes the playback engine to the browser via WebAssembly.
// After loading, it registers a global JavaScript function:
//
//	runPlayback(jsonString) -> jsonString
//
// The input and output are JSON-encoded SimulationInput and SimulationLog
// respectively, the same contract as `qtt run`.
package main

import (
	"syscall/js"

	"github.com/cxd309/spacetime-engine/internal/engine"
)

func main() {
	js.Global().Set("runPlayback", js.FuncOf(runPlayback))
	select {} // keep the WASM module alive until the page is closed
}

func runPlayback(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return map[string]any{"error": "no input provided"}
	}

	result, err := engine.RunJSON(args[0].String())
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return result
}
