package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/signifo/designgen/internal/auth/openrouter"
	"github.com/signifo/designgen/internal/document"
	"github.com/signifo/designgen/internal/generation"
	"github.com/signifo/designgen/internal/recovery"
	"github.com/signifo/designgen/internal/runtime/executor"
	"github.com/spf13/cobra"
)

type generateOptions struct {
	system     string
	systemFile string
	user       string
	userFile   string
	model      string
	apiKey     string
	out        string
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a design document from a prompt pair",
		Example: `  designgen generate --system-file prompts/system.txt --user "A tote bag inspired by tidal pools" --model anthropic/claude-3-haiku
  designgen generate --system-file system.txt --user-file user.txt --out designs/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt text")
	cmd.Flags().StringVar(&opts.systemFile, "system-file", "", "Read the system prompt from a file")
	cmd.Flags().StringVar(&opts.user, "user", "", "User prompt text")
	cmd.Flags().StringVar(&opts.userFile, "user-file", "", "Read the user prompt from a file")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model id (defaults to default-model)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "OpenRouter API key (overrides config and stored key)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write the document to this file, or into this directory as <theme>.json")
	cmd.MarkFlagsMutuallyExclusive("system", "system-file")
	cmd.MarkFlagsMutuallyExclusive("user", "user-file")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) error {
	system, err := promptText(opts.system, opts.systemFile, "system")
	if err != nil {
		return err
	}
	user, err := promptText(opts.user, opts.userFile, "user")
	if err != nil {
		return err
	}

	exec, err := executor.NewOpenRouterExecutor(cfg)
	if err != nil {
		return err
	}
	engine := recovery.NewEngine(recovery.WithSections(cfg.Recovery.Sections...))
	orch := generation.NewOrchestrator(exec, engine)

	ctx, stop := signalContext(cmd)
	defer stop()

	credential := openrouter.ResolveCredential(opts.apiKey, cfg.APIKey, resolvedAuthDir())
	result, err := orch.Generate(ctx, generation.Prompt{System: system, User: user}, credential, opts.model)
	if err != nil {
		return err
	}

	pretty, err := document.PrettyValue(result.Value)
	if err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	filename := result.Filename()
	if filename == "" {
		filename = "design"
	}
	filename += ".json"

	if opts.out == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
	} else {
		path, errWrite := writeDocument(opts.out, filename, pretty)
		if errWrite != nil {
			return errWrite
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s\n", path)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Filename: %s (strategy %s, request %s)\n", filename, result.Strategy, result.RequestID)
	if result.Truncated {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: the model response was truncated; some fields may be missing.")
	}
	return nil
}

func promptText(inline, file, label string) (string, error) {
	text := inline
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s prompt: %w", label, err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("a %s prompt is required (--%s or --%s-file)", label, label, label)
	}
	return text, nil
}

func writeDocument(out, filename string, data []byte) (string, error) {
	path := out
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		path = filepath.Join(out, filename)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	} else if strings.HasSuffix(out, string(os.PathSeparator)) {
		if err = os.MkdirAll(out, 0o755); err != nil {
			return "", err
		}
		path = filepath.Join(out, filename)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return path, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
