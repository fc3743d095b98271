package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/genesis"
	"github.com/liminalcommons/chora-cvm/internal/ui"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file-or-directory>",
	Short: "Load a YAML seed into the database",
	Long: `Manifest entities and bonds from YAML seed documents:

  entities:
    - id: persona-resident-architect
      type: persona
      data:
        name: Resident Architect
  bonds:
    - type: holds
      from: persona-resident-architect
      to: value-coherence
      confidence: 0.8

A directory is applied file by file in lexical order, so seeds can be
sequenced with numeric prefixes. Re-seeding is idempotent.`,
	Example: `  cvm seed genesis/00-personas.yaml
  cvm seed genesis/`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng := newEngine()
		defer eng.Close()

		store, err := eng.Store(rootCtx)
		if err != nil {
			fail("%v", err)
		}

		info, err := os.Stat(args[0])
		if err != nil {
			fail("cannot read %s: %v", args[0], err)
		}

		var res *genesis.Result
		if info.IsDir() {
			res, err = genesis.ApplyDir(rootCtx, store, args[0])
		} else {
			res, err = genesis.ApplyFile(rootCtx, store, args[0])
		}
		if err != nil {
			fail("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"entities": res.Entities,
				"bonds":    res.Bonds,
				"files":    res.Files,
			})
			return
		}
		fmt.Printf("%s Seeded %d entities and %d bonds from %d file(s)\n",
			ui.RenderPass("✓"), res.Entities, res.Bonds, len(res.Files))
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
