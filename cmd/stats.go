package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/ctxbudget/internal/manager"
	"github.com/apexion-ai/ctxbudget/internal/monitor"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// transcriptMessage is the on-disk shape accepted by the stats command.
type transcriptMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func newStatsCmd() *cobra.Command {
	var systemPrompt string

	cmd := &cobra.Command{
		Use:   "stats <transcript.json>",
		Short: "Run a conversation transcript through the engine and report usage",
		Long: "Reads a JSON array of {role, text} messages, runs one optimization\n" +
			"pass against the configured budget and prints per-segment usage,\n" +
			"warnings and the compaction outcome.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, args[0], systemPrompt)
		},
	}

	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt to account against the system_prompt segment")
	return cmd
}

func runStats(cmd *cobra.Command, path, systemPrompt string) error {
	cfg := initConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var transcript []transcriptMessage
	if err := json.Unmarshal(data, &transcript); err != nil {
		return fmt.Errorf("parse transcript %s: %w", path, err)
	}
	msgs := make([]provider.Message, len(transcript))
	for i, tm := range transcript {
		msgs[i] = provider.TextMessage(provider.Role(tm.Role), tm.Text)
	}

	var opts []manager.Option
	if cfg.MonitorEnabled {
		mon, err := monitor.New(monitor.Options{
			Path:     cfg.MonitorPath,
			Format:   cfg.MonitorFormat,
			Interval: cfg.MonitorInterval,
			Redact:   cfg.RedactSensitive,
		})
		if err != nil {
			return err
		}
		defer mon.Close()
		opts = append(opts, manager.WithMonitor(mon))
	}

	m, err := manager.New(cfg, opts...)
	if err != nil {
		return err
	}
	res, err := m.Process(cmd.Context(), msgs, systemPrompt)
	if err != nil {
		return err
	}

	stats := m.Stats()
	fmt.Printf("model        %s\n", stats.Model)
	fmt.Printf("messages     %d (%d turns)\n", stats.MessageCount, stats.TurnCount)
	fmt.Printf("tokens       %d / %d usable (%.1f%%)\n",
		stats.TotalTokens, stats.Budget.Usable, stats.Utilization*100)
	if res.Optimized {
		fmt.Printf("compacted    %d -> %d tokens (%s)\n", res.TokensBefore, res.TokensAfter, res.Strategy)
	} else {
		fmt.Println("compacted    no")
	}

	names := make([]string, 0, len(stats.Segments))
	for name := range stats.Segments {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nsegments:")
	for _, name := range names {
		seg := stats.Segments[name]
		fmt.Printf("  %-14s %6d / %-6d (%.0f%%)\n", name, seg.Tokens, seg.Budget, seg.Utilization()*100)
	}

	for _, w := range stats.Warnings {
		fmt.Printf("\nwarning: %s\n", w)
	}
	return nil
}
