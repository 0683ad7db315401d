package main

import (
	"fmt"
	"os"

	"github.com/bnema/transcriber/internal/cmd"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "transcriber: %v\n", err)
		os.Exit(1)
	}
}
