package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/castai/kimportgen/config"
)

// These should be set via `go build` during a release.
var (
	GitCommit = "undefined"
	GitRef    = "no-ref"
	Version   = "local"
)

func main() {
	root := newRootCommand(config.Version{GitCommit: GitCommit, GitRef: GitRef, Version: Version})

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCommand(version config.Version) *cobra.Command {
	root := &cobra.Command{
		Use:           "kimportgen",
		Short:         "Generate kernel import tables and function stubs from a header and a def file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		NewGenerateCommand(version),
		NewTableCommand(version),
		NewVersionCommand(version),
	)
	return root
}
