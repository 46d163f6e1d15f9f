package main

import (
	"fmt"
	"os"

	"github.com/bnema/radialmx/cmd"
)

// Set by the release build with -ldflags "-X main.version=..."
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	if version != "" {
		cmd.Version, cmd.Commit, cmd.Date = version, commit, date
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
