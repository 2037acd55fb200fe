// Package cmd implements the ctxbudget command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/ctxbudget/internal/config"
)

var (
	cfgFile       string
	modelFlag     string
	windowFlag    int
	reserveFlag   int
	strategyFlag  string
	thresholdFlag float64
	minGainFlag   float64
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	rootCmd := &cobra.Command{
		Use:   "ctxbudget",
		Short: "Context budgeting and optimization for LLM conversations",
		Long: "ctxbudget estimates token usage, allocates per-segment context budgets\n" +
			"and compacts conversation histories that outgrow a model's window.",
		// Running ctxbudget with no subcommand prints the budget table.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBudget()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/ctxbudget/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().IntVar(&windowFlag, "window", 0, "override context window size in tokens")
	rootCmd.PersistentFlags().IntVar(&reserveFlag, "reserve", 0, "tokens reserved for model output")
	rootCmd.PersistentFlags().StringVar(&strategyFlag, "strategy", "", "optimization strategy (smart|truncate|sliding_window|summarize|prune_tools)")
	rootCmd.PersistentFlags().Float64Var(&thresholdFlag, "threshold", 0, "utilization fraction that triggers compaction")
	rootCmd.PersistentFlags().Float64Var(&minGainFlag, "min-gain", -1, "minimum percent reduction required to keep a compaction")

	// Subcommands
	rootCmd.AddCommand(newEstimateCmd())
	rootCmd.AddCommand(newBudgetCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config values
	var o config.Overrides
	touched := false
	if modelFlag != "" {
		o.Model = &modelFlag
		touched = true
	}
	if windowFlag > 0 {
		o.ContextWindow = &windowFlag
		touched = true
	}
	if reserveFlag > 0 {
		o.OutputReserve = &reserveFlag
		touched = true
	}
	if strategyFlag != "" {
		o.Strategy = &strategyFlag
		touched = true
	}
	if thresholdFlag > 0 {
		o.CompactThreshold = &thresholdFlag
		touched = true
	}
	if minGainFlag >= 0 {
		o.CompressionMinGainPct = &minGainFlag
		touched = true
	}
	if !touched {
		return cfg
	}
	o.Source = config.SourceCLI
	return cfg.Merge(o)
}
