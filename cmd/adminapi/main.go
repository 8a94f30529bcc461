// Command adminapi runs the read-only operator HTTP surface alongside
// (not instead of) the worker process, mirroring the teacher's split
// between a worker-only binary and an HTTP-serving one in cmd/main.go.
package main

import (
	"fmt"
	"os"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/adminapi"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize admin api: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := adminapi.New(a.Log, adminapi.ConfigFromEnv(), a.Tasks, a.Governor)
	if err := srv.Run(); err != nil {
		a.Log.Fatal("admin api server exited", "error", err)
	}
}
