package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cvctl",
		Short:         "Ask questions about candidate résumés and seed development indexes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAskCommand())
	root.AddCommand(newSeedCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cvctl: %v\n", err)
		os.Exit(1)
	}
}
