package main

import (
	"bufio"
	"fmt"

	"github.com/signifo/designgen/internal/runtime/executor"
	sdkauth "github.com/signifo/designgen/sdk/auth"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var apiKey string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify an OpenRouter API key and store it in auth-dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := executor.NewOpenRouterExecutor(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			reader := bufio.NewReader(cmd.InOrStdin())
			opts := &sdkauth.LoginOptions{
				APIKey: apiKey,
				Prompt: func(label string) (string, error) {
					fmt.Fprint(cmd.ErrOrStderr(), label)
					return reader.ReadString('\n')
				},
			}
			result, err := sdkauth.NewOpenRouterAuthenticator(exec).Login(ctx, cfg, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key %s verified (%d models) and saved to %s\n",
				result.Storage.Masked(), len(result.Models), result.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key to store (prompted when omitted)")
	return cmd
}
