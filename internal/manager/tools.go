package manager

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/apexion-ai/ctxbudget/internal/config"
	"github.com/apexion-ai/ctxbudget/internal/monitor"
)

// charsPerToken converts a token budget into a character keep length,
// mirroring the estimator's heuristic in the other direction.
const charsPerToken = 4

// ToolBudget returns the output token cap for a tool. Tools without an
// explicit budget fall back to the configured default.
func (m *Manager) ToolBudget(name string) int {
	if tb, ok := m.toolBudgets[name]; ok && tb.MaxOutputTokens > 0 {
		return tb.MaxOutputTokens
	}
	return m.cfg.DefaultToolOutputMax
}

// SetToolBudget registers or replaces a tool's output budget at runtime.
func (m *Manager) SetToolBudget(name string, maxOutputTokens int, protected bool) {
	m.toolBudgets[name] = config.ToolBudget{
		ToolName:        name,
		MaxOutputTokens: maxOutputTokens,
		Protected:       protected,
	}
	if protected {
		m.protected[name] = true
	} else {
		delete(m.protected, name)
	}
}

// Protected reports whether a tool's output is exempt from truncation.
func (m *Manager) Protected(name string) bool { return m.protected[name] }

// TruncateToolOutput enforces the tool's output budget. Protected tools and
// outputs within budget come back byte-identical. Truncated outputs keep a
// rune-safe prefix and end with a visible marker naming the elided volume;
// the result is always strictly shorter than the input.
func (m *Manager) TruncateToolOutput(name, output string) string {
	if m.protected[name] {
		return output
	}
	maxTokens := m.ToolBudget(name)
	if maxTokens <= 0 || m.est.Estimate(output) <= maxTokens {
		return output
	}

	keep := maxTokens * charsPerToken
	marker := truncationMarker(len(output) - keep)
	// Shrink the kept prefix until prefix+marker is strictly shorter than the
	// input. The marker may gain a digit as the elided count grows, so
	// recompute it each step.
	for keep > 0 && keep+len(marker) >= len(output) {
		keep--
		marker = truncationMarker(len(output) - keep)
	}
	// Back off to a rune boundary so the cut never splits a multi-byte char.
	for keep > 0 && !utf8.RuneStart(output[keep]) {
		keep--
	}
	truncated := output[:keep] + marker
	if len(truncated) >= len(output) {
		// Output too small to hold the full marker; fall back to a bare
		// ellipsis so the truncation stays visible.
		truncated = output[:keep] + "..."
	}

	m.appendEvent(OptimizationEvent{
		Timestamp:    time.Now(),
		Type:         EventToolTruncate,
		TokensBefore: m.est.Estimate(output),
		TokensAfter:  m.est.Estimate(truncated),
		Details:      fmt.Sprintf("tool %s over %d-token budget", name, maxTokens),
	})
	m.record(monitor.Record{
		Type:         string(EventToolTruncate),
		TokensBefore: m.est.Estimate(output),
		TokensAfter:  m.est.Estimate(truncated),
		Details:      name,
	})
	return truncated
}

func truncationMarker(elided int) string {
	return fmt.Sprintf("\n[output truncated: %d chars elided]", elided)
}
