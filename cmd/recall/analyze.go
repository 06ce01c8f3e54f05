package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/recall/intent"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <message>",
	Short: "Show the intent decision for a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		model, err := newModel(cfg.LLM)
		if err != nil {
			return err
		}
		state := intent.NewPipeline(model).AnalyzeWithDetails(ctx, strings.Join(args, " "))

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "message:     %s\n", state.Message)
		fmt.Fprintf(out, "type:        %s\n", state.MessageType)
		fmt.Fprintf(out, "confidence:  %.2f\n", state.Confidence)
		fmt.Fprintf(out, "retrieve:    %t\n", state.RetrieveNeeded)
		fmt.Fprintf(out, "store:       %t\n", state.StoreNeeded)
		if r := state.Reasoning(); r != "" {
			fmt.Fprintf(out, "reasoning:   %s\n", r)
		}
		if state.Error != "" {
			fmt.Fprintf(out, "error:       %s\n", state.Error)
		}
		return nil
	},
}
