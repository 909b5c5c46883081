// Package main is the entry point for deskmate.
package main

import (
	"fmt"
	"os"

	"github.com/zjrosen/deskmate/cmd"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "deskmate:", err)
		os.Exit(1)
	}
}
