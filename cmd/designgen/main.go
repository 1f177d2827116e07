// Command designgen generates structured product-design documents with a hosted language model.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/signifo/designgen/internal/config"
	"github.com/signifo/designgen/internal/failure"
	"github.com/signifo/designgen/internal/logging"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.yaml"

var (
	// Global flags
	configPath string
	debugMode  bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "designgen",
	Short: "Generate structured product-design concepts with a hosted language model",
	Long: `designgen sends a system/user prompt pair to an OpenRouter-compatible
chat-completions API and recovers a structured JSON design document from the
model's reply, repairing malformed or truncated output where possible.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("failed to load .env: %v", err)
		}
		logging.SetupBaseLogger()

		optional := !cmd.Flags().Changed("config")
		loaded, err := config.LoadConfigOptional(configPath, optional)
		if err != nil {
			return err
		}
		applyFlagOverrides(loaded)
		if err = logging.ApplyConfig(loaded); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := logging.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging and payload dumps")

	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newModelsCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRepairCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

// renderError shows classified failures as their user message and anything
// else (flag and config errors) verbatim.
func renderError(err error) string {
	if _, ok := failure.As(err); ok {
		return failure.UserMessage(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return failure.UserMessage(err)
	}
	return err.Error()
}

// applyFlagOverrides re-applies command-line settings on top of a loaded
// configuration, including one reloaded from disk.
func applyFlagOverrides(c *config.Config) {
	if debugMode {
		c.Debug = true
	}
}

// resolvedAuthDir returns the auth directory, or "" when it cannot be resolved.
func resolvedAuthDir() string {
	dir, err := cfg.ResolvedAuthDir()
	if err != nil {
		log.Warnf("failed to resolve auth-dir: %v", err)
		return ""
	}
	return dir
}
