package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/ui"
	"github.com/liminalcommons/chora-cvm/internal/worker"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and queue status",
	Long: `Show the resolved database, entity counts by type, full-text search
availability, and worker queue depth.`,
	Example: `  cvm status
  cvm status --json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		eng := newEngine()
		defer eng.Close()

		store, err := eng.Store(rootCtx)
		if err != nil {
			fail("%v", err)
		}
		counts, err := store.CountEntitiesByType(rootCtx)
		if err != nil {
			fail("%v", err)
		}

		queueCounts := map[string]int{}
		queuePath := worker.QueuePath(store.Path())
		if _, err := os.Stat(queuePath); err == nil {
			if q, err := worker.OpenQueue(rootCtx, queuePath); err == nil {
				queueCounts, _ = q.CountByStatus(rootCtx)
				q.Close()
			}
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"db":       store.Path(),
				"fts":      store.FTSEnabled(),
				"entities": counts,
				"queue":    queueCounts,
			})
			return
		}

		fmt.Printf("Database: %s\n", ui.RenderID(store.Path()))
		fts := "enabled"
		if !store.FTSEnabled() {
			fts = "unavailable (LIKE fallback)"
		}
		fmt.Printf("Full-text search: %s\n", fts)

		total := 0
		types := make([]string, 0, len(counts))
		for t, n := range counts {
			types = append(types, t)
			total += n
		}
		sort.Strings(types)
		fmt.Printf("\nEntities (%d total):\n", total)
		for _, t := range types {
			fmt.Printf("  %-20s %d\n", t, counts[t])
		}

		if len(queueCounts) > 0 {
			fmt.Println("\nWorker queue:")
			statuses := make([]string, 0, len(queueCounts))
			for s := range queueCounts {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				fmt.Printf("  %-20s %d\n", ui.RenderStatus(s), queueCounts[s])
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
