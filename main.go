package main

import (
	"context"
	"os"
)

var (
	// Build info embedded by goreleaser.
	version = "master" //nolint:gochecknoglobals
	commit  = "latest" //nolint:gochecknoglobals
	date    = "n/a"    //nolint:gochecknoglobals
	builtBy = "src"    //nolint:gochecknoglobals
)

func main() {
	if errExecute := newRootCmd().ExecuteContext(context.Background()); errExecute != nil {
		os.Exit(1)
	}
}
