package main

import (
	"github.com/formscout/formscout/internal/cmd"
	"github.com/formscout/formscout/internal/server/handlers"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-10-01"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		// Maps config, advisor and upstream failures onto foundry exit codes.
		cmd.Exit(err)
	}
}
