package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "seedbank",
		Short:        "Seed bank inventory service with undoable edits",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newExportCmd())
	return root
}
