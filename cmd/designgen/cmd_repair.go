package main

import (
	"fmt"
	"io"
	"os"

	"github.com/signifo/designgen/internal/document"
	"github.com/signifo/designgen/internal/recovery"
	"github.com/spf13/cobra"
)

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair <file|->",
		Short: "Recover a design document from a saved model response",
		Long: `repair runs the JSON recovery cascade offline on a model response saved
to a file (or read from stdin with "-") and prints the recovered document.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			engine := recovery.NewEngine(recovery.WithSections(cfg.Recovery.Sections...))
			report, err := engine.ParseWithReport(string(raw))
			if err != nil {
				return err
			}
			pretty, err := document.PrettyValue(report.Value)
			if err != nil {
				return fmt.Errorf("render document: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
			fmt.Fprintf(cmd.ErrOrStderr(), "Recovered with strategy %s (truncated: %t)\n", report.Strategy, report.Truncated)
			return nil
		},
	}
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}
