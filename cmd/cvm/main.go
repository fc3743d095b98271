// Command cvm is the CLI surface of the Chora cognitive virtual machine.
// Every subcommand converges on engine.Dispatch; the CLI only resolves the
// database, parses flags, and renders results.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/config"
	"github.com/liminalcommons/chora-cvm/internal/engine"
	"github.com/liminalcommons/chora-cvm/internal/std"
)

var (
	rootCtx context.Context

	// Persistent flags, reconciled with config in PersistentPreRun.
	jsonOutput  bool
	dbFlag      string
	personaFlag string
)

var rootCmd = &cobra.Command{
	Use:   "cvm",
	Short: "Chora cognitive virtual machine",
	Long: `cvm is a graph-structured, event-sourced cognitive virtual machine.

Entities and bonds live in an embedded SQLite database. Protocols are
graphs stored as entities; primitives are builtin handlers. Both are
invoked uniformly by intent:

  cvm invoke <intent> --input key=value

The database is found via --db, CVM_DB, the db config key, or the nearest
.chora/cvm.db walking up from the current directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.Initialize(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		// Flags beat config; config beats defaults.
		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		if personaFlag == "" {
			personaFlag = config.GetString("persona")
		}
	},
}

// resolveDB locates the database or exits with guidance.
func resolveDB() string {
	path := config.ResolveDBPath(dbFlag)
	if path == "" {
		fmt.Fprintln(os.Stderr, "Error: no database found (set --db, CVM_DB, or run 'cvm init')")
		os.Exit(1)
	}
	return path
}

// newEngine builds a lazily-hydrating engine over the resolved database.
func newEngine() *engine.Engine {
	return engine.New(resolveDB(), std.Symbols(),
		engine.WithMaxDepth(config.GetInt("max-depth")))
}

func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func exitErr() {
	os.Exit(1)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCtx = ctx

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&personaFlag, "persona", "", "Persona id recorded on runs")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
