package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/ui"
	"github.com/liminalcommons/chora-cvm/internal/worker"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <intent>",
	Short: "Queue an intent for the background worker",
	Long: `Add a job to the worker queue instead of dispatching inline. The job
carries the same inputs 'cvm invoke' would; a running worker picks it up
immediately, otherwise on its next start.

Check the recorded result with 'cvm job <id>'.`,
	Example: `  cvm enqueue attend --input concept_id=concept-emergence
  cvm enqueue protocol-reflect --inputs-json '{"window_days": 7}'`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pairs, _ := cmd.Flags().GetStringArray("input")
		inputsJSON, _ := cmd.Flags().GetString("inputs-json")

		inputs := map[string]any{}
		if inputsJSON != "" {
			if err := json.Unmarshal([]byte(inputsJSON), &inputs); err != nil {
				fail("invalid --inputs-json: %v", err)
			}
		}
		for _, pair := range pairs {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				fail("invalid --input %q (want key=value)", pair)
			}
			inputs[key] = parseInputValue(value)
		}

		q, err := worker.OpenQueue(rootCtx, worker.QueuePath(resolveDB()))
		if err != nil {
			fail("%v", err)
		}
		defer q.Close()

		id, err := q.Enqueue(rootCtx, &worker.Job{
			Intent:    args[0],
			Inputs:    inputs,
			PersonaID: personaFlag,
		})
		if err != nil {
			fail("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]any{"id": id, "intent": args[0]})
			return
		}
		fmt.Printf("%s Enqueued %s as %s\n", ui.RenderPass("✓"), args[0], ui.RenderID(id))
	},
}

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show a queued job and its result",
	Example: `  cvm job job-1b9f3c8e
  cvm job job-1b9f3c8e --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		q, err := worker.OpenQueue(rootCtx, worker.QueuePath(resolveDB()))
		if err != nil {
			fail("%v", err)
		}
		defer q.Close()

		job, err := q.Get(rootCtx, args[0])
		if err != nil {
			fail("%v", err)
		}
		if job == nil {
			fail("job not found: %s", args[0])
		}

		if jsonOutput {
			outputJSON(job)
			return
		}
		fmt.Printf("%s %s\n", ui.RenderID(job.ID), ui.RenderStatus(job.Status))
		fmt.Printf("  intent: %s\n", job.Intent)
		if job.Result != nil {
			if job.Result.OK {
				for _, line := range ui.RenderKeyValues(job.Result.Data) {
					fmt.Println("  " + line)
				}
			} else {
				fmt.Printf("  %s: %s\n", ui.RenderErr(job.Result.ErrorKind), job.Result.ErrorMessage)
			}
		}
	},
}

func init() {
	enqueueCmd.Flags().StringArray("input", nil, "Input as key=value (repeatable)")
	enqueueCmd.Flags().String("inputs-json", "", "Inputs as a JSON object")
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(jobCmd)
}
