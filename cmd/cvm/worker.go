package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/config"
	"github.com/liminalcommons/chora-cvm/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background job worker",
	Long: `Drain the job queue (<db>.queue) through the engine until interrupted.

Jobs are claimed oldest-first and executed exactly like 'cvm invoke';
results are recorded on the job row. A lock file enforces one worker per
queue. The worker wakes on queue file changes and otherwise polls.`,
	Example: `  cvm worker
  cvm worker --poll-interval 1s --log /var/log/cvm-worker.log`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		eng := newEngine()
		defer eng.Close()

		store, err := eng.Store(rootCtx)
		if err != nil {
			fail("%v", err)
		}

		q, err := worker.OpenQueue(rootCtx, worker.QueuePath(store.Path()))
		if err != nil {
			fail("%v", err)
		}
		defer q.Close()

		pollInterval := config.GetDuration("worker.poll-interval")
		if cmd.Flags().Changed("poll-interval") {
			pollInterval, _ = cmd.Flags().GetDuration("poll-interval")
		}
		logPath, _ := cmd.Flags().GetString("log")
		if logPath == "" {
			logPath = config.GetString("worker.log")
		}

		w := worker.New(q, eng, worker.Options{
			PollInterval: pollInterval,
			PersonaID:    personaFlag,
			LogPath:      logPath,
		})
		fmt.Printf("Worker draining %s (Ctrl-C to stop)\n", q.Path())
		if err := w.Run(rootCtx); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	workerCmd.Flags().Duration("poll-interval", 0, "Queue poll interval (default from config)")
	workerCmd.Flags().String("log", "", "Rotating log file (default stderr)")
	rootCmd.AddCommand(workerCmd)
}
