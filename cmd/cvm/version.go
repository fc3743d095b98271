package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cvm version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			outputJSON(map[string]any{"version": Version})
			return
		}
		fmt.Printf("cvm %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
