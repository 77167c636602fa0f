/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"os"

	"github.com/acronis/go-wsrelay/internal/cmd"
)

// Set via ldflags, e.g. -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2024-10-28".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
