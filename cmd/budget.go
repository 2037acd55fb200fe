package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/ctxbudget/internal/budget"
)

func newBudgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "budget",
		Short: "Print the per-segment budget allocation for a model",
		Example: `  ctxbudget budget --model claude-sonnet-4
  ctxbudget budget --model gpt-4o --reserve 4096
  ctxbudget budget --window 32768`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBudget()
		},
	}
}

func runBudget() error {
	cfg := initConfig()

	var b budget.Budget
	var err error
	if cfg.ContextWindow > 0 {
		b, err = budget.AllocateWindow(cfg.Model, cfg.ContextWindow, cfg.OutputReserve)
	} else {
		b, err = budget.Allocate(cfg.Model, cfg.OutputReserve)
	}
	if err != nil {
		return err
	}

	fmt.Print(b.Format())
	return nil
}
