package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/signifo/designgen/internal/auth/openrouter"
	"github.com/signifo/designgen/internal/runtime/executor"
	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	var apiKey string
	var freeOnly bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Verify the API key and list the models it can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := executor.NewOpenRouterExecutor(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			credential := openrouter.ResolveCredential(apiKey, cfg.APIKey, resolvedAuthDir())
			models, err := exec.ListModels(ctx, credential)
			if err != nil {
				return err
			}
			return printModels(cmd, models, freeOnly)
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "OpenRouter API key (overrides config and stored key)")
	cmd.Flags().BoolVar(&freeOnly, "free", false, "Only list models with zero pricing")
	return cmd
}

func printModels(cmd *cobra.Command, models []executor.Model, freeOnly bool) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONTEXT\tINPUT $/M\tOUTPUT $/M\t")
	for _, m := range models {
		if freeOnly && !m.Free() {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t\n", m.ID, m.ContextLength, perMillion(m.Pricing.Prompt), perMillion(m.Pricing.Completion))
	}
	return w.Flush()
}

// perMillion converts a per-token USD price into dollars per million tokens.
func perMillion(price string) string {
	value, err := strconv.ParseFloat(price, 64)
	if err != nil || value <= 0 {
		return "free"
	}
	return strconv.FormatFloat(value*1_000_000, 'f', 2, 64)
}
