package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over entities",
	Long: `Search indexed entities. Uses FTS5 when the build has it; otherwise
degrades to LIKE scans over entity ids and data. Malformed FTS syntax
also falls back rather than erroring.`,
	Example: `  cvm search emergence
  cvm search "resonance patterns" --limit 5`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		eng := newEngine()
		defer eng.Close()

		store, err := eng.Store(rootCtx)
		if err != nil {
			fail("%v", err)
		}
		hits, err := store.SearchEntities(rootCtx, args[0], limit)
		if err != nil {
			fail("%v", err)
		}

		if jsonOutput {
			outputJSON(hits)
			return
		}

		if len(hits) == 0 {
			fmt.Printf("No results for %q\n", args[0])
			return
		}
		rows := make([][]string, 0, len(hits))
		for _, hit := range hits {
			rows = append(rows, []string{hit.ID, hit.Type, hit.Title})
		}
		fmt.Println(ui.RenderTable([]string{"ID", "TYPE", "TITLE"}, rows, ui.GetWidth()))
		fmt.Printf("%d results\n", len(hits))
	},
}

func init() {
	searchCmd.Flags().IntP("limit", "n", 20, "Maximum results")
	rootCmd.AddCommand(searchCmd)
}
