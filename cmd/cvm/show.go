package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show <entity-id>",
	Short: "Show an entity and its constellation",
	Long: `Show one entity's data plus the bonds around it in both directions.
Bonds are entities too; showing a bond id displays its mirror
relationship entity and any bonds that take it as a subject.`,
	Example: `  cvm show concept-emergence
  cvm show rel-expresses-concept-emergence-value-coherence
  cvm show state-8400dff1 --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng := newEngine()
		defer eng.Close()

		store, err := eng.Store(rootCtx)
		if err != nil {
			fail("%v", err)
		}

		entity, err := store.LoadEntity(rootCtx, args[0])
		if err != nil {
			fail("%v", err)
		}
		if entity == nil {
			fail("entity not found: %s", args[0])
		}
		con, err := store.GetConstellation(rootCtx, args[0])
		if err != nil {
			fail("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"id":       entity.ID,
				"type":     entity.Type,
				"data":     entity.Data,
				"outgoing": con.Outgoing,
				"incoming": con.Incoming,
			})
			return
		}

		fmt.Printf("%s %s\n\n", ui.RenderID(entity.ID), ui.RenderMuted("("+entity.Type+")"))
		for _, line := range ui.RenderKeyValues(entity.Data) {
			fmt.Println("  " + line)
		}

		if len(con.Outgoing) > 0 {
			fmt.Println("\n" + ui.RenderHeader("Outgoing bonds:"))
			for _, b := range con.Outgoing {
				fmt.Printf("  -[%s]-> %s (%s, %.2f)\n", b.Type, ui.RenderID(b.ToID), ui.RenderStatus(b.Status), b.Confidence)
			}
		}
		if len(con.Incoming) > 0 {
			fmt.Println("\n" + ui.RenderHeader("Incoming bonds:"))
			for _, b := range con.Incoming {
				fmt.Printf("  <-[%s]- %s (%s, %.2f)\n", b.Type, ui.RenderID(b.FromID), ui.RenderStatus(b.Status), b.Confidence)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
