package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wolfman30/synquot/internal/quotation"
)

func newNormalizeCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize quotation JSON and recompute totals",
		Long: `Reads a quotation from the file argument, or stdin when the argument is
missing or "-", and prints the normalized document. Malformed service entries
are dropped with a warning.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			doc, err := quotation.ParseJSON(data)
			if err != nil {
				if !errors.Is(err, quotation.ErrMalformedService) {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			if summary {
				_, err := fmt.Fprint(cmd.OutOrStdout(), quotation.Narrate(doc))
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print a readable summary instead of JSON")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}
