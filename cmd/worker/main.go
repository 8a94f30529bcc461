// Command worker runs the Pipeline Orchestrator's Worker Runtime: the
// claim loop pool, stale-claim reaper, and (if configured) the Board
// Synchronizer's inbound poll loop. Grounded on the teacher's
// cmd/main.go worker-only branch (envTrue gate, select{} keep-alive),
// adapted here to SIGTERM/SIGHUP-aware RunUntilSignal since this
// binary has no HTTP server half to fall back on.
package main

import (
	"fmt"
	"os"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize worker: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.RunUntilSignal()
}
