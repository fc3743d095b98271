package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/ui"
)

var capabilitiesCmd = &cobra.Command{
	Use:     "capabilities",
	Aliases: []string{"caps"},
	Short:   "List invocable intents",
	Long: `List every invocable capability: protocols stored in the database and
primitives loaded from the builtin library. A protocol written to the
database appears here immediately, with no reload.`,
	Example: `  cvm capabilities
  cvm capabilities --json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		eng := newEngine()
		defer eng.Close()

		caps, err := eng.ListCapabilities(rootCtx)
		if err != nil {
			fail("%v", err)
		}

		if jsonOutput {
			outputJSON(caps)
			return
		}

		rows := make([]ui.CapabilityRow, 0, len(caps))
		for _, c := range caps {
			rows = append(rows, ui.CapabilityRow{
				ID:          c.ID,
				Kind:        string(c.Kind),
				Description: c.Description,
			})
		}
		fmt.Println(ui.RenderCapabilities(rows, ui.GetWidth()))
		fmt.Printf("%d capabilities\n", len(caps))
	},
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)
}
