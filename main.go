package main

import (
	"fmt"
	"os"

	"github.com/bearwatch/bearwatch/cmd"
	"github.com/bearwatch/bearwatch/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	build := buildinfo.New(version, buildDate)

	rootCmd, cleanup := cmd.RootCommand(build)
	defer cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
