package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/wolfman30/synquot/pkg/logging"
)

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "quotectl",
		Short: "Build and inspect quotations from the terminal",
		Long: `quotectl drives the conversational quotation engine locally: chat with it,
normalize quotation JSON, or see how a message is classified.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newChatCmd(opts),
		newNormalizeCmd(),
		newClassifyCmd(),
	)
	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) *logging.Logger {
	return logging.NewWithWriter(o.logLevel, cmd.ErrOrStderr())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
