package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/synquot/internal/intent"
)

type classification struct {
	Message  string          `json:"message"`
	Intent   intent.Intent   `json:"intent"`
	Entities intent.Entities `json:"entities"`
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <message>",
		Short: "Show the intent and entities detected in a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return printJSON(cmd.OutOrStdout(), classification{
				Message:  message,
				Intent:   intent.NewClassifier().Classify(message),
				Entities: intent.NewExtractor().Extract(message),
			})
		},
	}
}
