package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/config"
	"github.com/liminalcommons/chora-cvm/internal/storage/sqlite"
	"github.com/liminalcommons/chora-cvm/internal/ui"
)

const configTemplate = `# cvm configuration
# actor: local
# persona: persona-resident-architect
# worker:
#   poll-interval: 5s
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a database in ./.chora",
	Long: `Create .chora/cvm.db (with schema) and a commented .chora/config.yaml
in the current directory. Safe to re-run; existing files are kept.`,
	Example: `  cvm init
  cvm init --db /tmp/scratch.db`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dbPath := dbFlag
		if dbPath == "" {
			dbPath = config.GetString("db")
		}
		if dbPath == "" {
			if err := os.MkdirAll(".chora", 0o755); err != nil {
				fail("failed to create .chora: %v", err)
			}
			dbPath = filepath.Join(".chora", "cvm.db")

			configPath := filepath.Join(".chora", "config.yaml")
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := os.WriteFile(configPath, []byte(configTemplate), 0o644); err != nil {
					fail("failed to write config template: %v", err)
				}
			}
		}

		existed := false
		if _, err := os.Stat(dbPath); err == nil {
			existed = true
		}

		store, err := sqlite.New(rootCtx, dbPath)
		if err != nil {
			fail("%v", err)
		}
		fts := store.FTSEnabled()
		store.Close()

		if jsonOutput {
			outputJSON(map[string]any{"db": dbPath, "created": !existed, "fts": fts})
			return
		}
		if existed {
			fmt.Printf("%s Database already initialized at %s\n", ui.RenderPass("✓"), ui.RenderID(dbPath))
		} else {
			fmt.Printf("%s Created database at %s\n", ui.RenderPass("✓"), ui.RenderID(dbPath))
		}
		if !fts {
			fmt.Println(ui.RenderWarn("  FTS5 unavailable; search will use LIKE scans"))
		}
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
