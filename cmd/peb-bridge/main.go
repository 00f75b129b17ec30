package main

import (
	"os"

	"github.com/dyluth/peb-bridge/cmd/peb-bridge/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are printed by the printer package; only the exit status is left.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
