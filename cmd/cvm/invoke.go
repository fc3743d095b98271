package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/engine"
	"github.com/liminalcommons/chora-cvm/internal/ui"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <intent>",
	Short: "Dispatch an intent (protocol or primitive)",
	Long: `Dispatch an intent through the engine.

The intent may be an exact entity id (protocol-attend, primitive-sys-log)
or a short name (attend, sys-log). When a protocol and a primitive share a
short name the protocol wins; the primitive stays reachable with an
underscore prefix (_sys-log) or its full id.

Inputs are name-keyed. Pass simple values with repeated --input flags, or
a full JSON object with --inputs-json.`,
	Example: `  cvm invoke attend --input concept_id=concept-emergence
  cvm invoke sys-log --input message=hello --input level=warn
  cvm invoke protocol-reflect --inputs-json '{"window_days": 7}'
  cvm invoke attend --json`,
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

		eng := newEngine()
		defer eng.Close()

		var emitted []string
		result := eng.Dispatch(rootCtx, args[0], inputs, engine.DispatchOptions{
			PersonaID: personaFlag,
			Sink: func(content string) {
				if jsonOutput {
					emitted = append(emitted, content)
				} else {
					fmt.Println(content)
				}
			},
		})

		if jsonOutput {
			out := map[string]any{
				"ok":   result.OK,
				"data": result.Data,
			}
			if result.ErrorKind != "" {
				out["error_kind"] = result.ErrorKind
				out["error_message"] = result.ErrorMessage
			}
			if len(emitted) > 0 {
				out["output"] = emitted
			}
			outputJSON(out)
			if !result.OK {
				exitErr()
			}
			return
		}

		width := ui.GetWidth()
		if result.OK {
			fmt.Println(ui.RenderResultBox(true, args[0], ui.RenderKeyValues(result.Data), width))
			return
		}
		fmt.Println(ui.RenderResultBox(false,
			fmt.Sprintf("%s (%s)", args[0], result.ErrorKind),
			[]string{result.ErrorMessage}, width))
		exitErr()
	},
}

// parseInputValue keeps --input ergonomic: JSON literals pass through
// typed, everything else stays a string.
func parseInputValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func init() {
	invokeCmd.Flags().StringArray("input", nil, "Input as key=value (repeatable)")
	invokeCmd.Flags().String("inputs-json", "", "Inputs as a JSON object")
	rootCmd.AddCommand(invokeCmd)
}
