package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

func newEstimateCmd() *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "estimate [file...]",
		Short: "Estimate token counts for files or stdin",
		Example: `  ctxbudget estimate prompt.txt
  cat transcript.md | ctxbudget estimate
  ctxbudget estimate --validate prompt.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(cmd.Context(), args, validate)
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "validate the heuristic against the provider's count-tokens API (needs ANTHROPIC_API_KEY)")
	return cmd
}

func runEstimate(ctx context.Context, files []string, validate bool) error {
	cfg := initConfig()

	var counter provider.TokenCounter
	if validate {
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return fmt.Errorf("--validate needs ANTHROPIC_API_KEY")
		}
		counter = provider.NewAnthropicCounter(apiKey, cfg.Model)
	}
	est := estimator.New(counter)

	// Piped stdin counts as an input when no files were named.
	if len(files) == 0 {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("no input: pass a file or pipe text on stdin")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		return printEstimate(ctx, est, "stdin", string(data), validate)
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := printEstimate(ctx, est, path, string(data), validate); err != nil {
			return err
		}
	}
	return nil
}

func printEstimate(ctx context.Context, est *estimator.Estimator, name, text string, validate bool) error {
	if !validate {
		fmt.Printf("%s: %d tokens (heuristic)\n", name, est.Estimate(text))
		return nil
	}

	tokens, metrics := est.EstimateValidated(ctx, text)
	if metrics == nil {
		fmt.Printf("%s: %d tokens (heuristic, validation unavailable)\n", name, tokens)
		return nil
	}
	fmt.Printf("%s: %d tokens (exact), heuristic %d, error %.1f%%\n",
		name, metrics.AccurateEstimate, metrics.HeuristicEstimate, metrics.ErrorPct)
	return nil
}
