package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "todoe2e",
		Short:         "Todo app end-to-end tooling",
		Long:          "Serve the bundled todo app and establish authenticated browser sessions against it or a hosted deployment.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}
