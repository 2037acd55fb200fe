// Package manager orchestrates the budgeting engine for one agent: it runs
// the optimize-if-needed decision with the compression-benefit check,
// enforces per-tool output budgets, exposes the LLM-boundary snapshot hook,
// and keeps a bounded history of optimization events. MultiManager composes
// one Manager per agent and governs context handoff between them.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/apexion-ai/ctxbudget/internal/budget"
	"github.com/apexion-ai/ctxbudget/internal/config"
	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/ledger"
	"github.com/apexion-ai/ctxbudget/internal/monitor"
	"github.com/apexion-ai/ctxbudget/internal/optimizer"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// EventType classifies an optimization-history entry.
type EventType string

const (
	EventAutoCompact   EventType = "auto_compact"
	EventManualCompact EventType = "manual_compact"
	EventSnapshot      EventType = "snapshot"
	EventToolTruncate  EventType = "tool_truncate"
	EventHandoff       EventType = "handoff"
)

// defaultMaxHistory bounds the optimization-event ring buffer.
const defaultMaxHistory = 50

// OptimizationEvent is one immutable entry in the bounded history.
type OptimizationEvent struct {
	Timestamp    time.Time
	Type         EventType
	Strategy     optimizer.Name
	TokensBefore int
	TokensAfter  int
	TokensSaved  int
	Details      string
}

// ProcessResult reports one pass through the optimize-if-needed decision.
type ProcessResult struct {
	Messages     []provider.Message
	Optimized    bool
	TokensBefore int
	TokensAfter  int
	Utilization  float64
	Strategy     optimizer.Name
}

// Stats is a read-only snapshot for external dashboards.
type Stats struct {
	Model        string
	Budget       budget.Budget
	Segments     map[string]ledger.Segment
	TotalTokens  int
	Utilization  float64
	TurnCount    int
	MessageCount int
	Warnings     []string
	EventCount   int
}

// ResolvedConfig is the effective configuration plus its winning source.
type ResolvedConfig struct {
	Config config.Config
	Source string // default | env | cli
}

// Manager is the per-agent facade. Synchronous: Process, CaptureLLMBoundary
// and the tool-budget calls run to completion with no internal suspension.
// One Manager must not be shared across goroutines; use MultiManager for
// concurrent agents.
type Manager struct {
	cfg  config.Config
	est  *estimator.Estimator
	bdg  budget.Budget
	led  *ledger.Ledger
	strt optimizer.Strategy

	toolBudgets map[string]config.ToolBudget
	protected   map[string]bool

	callbacks    []func(SnapshotHook)
	lastSnapshot *SnapshotHook

	history    []OptimizationEvent
	maxHistory int

	mon   *monitor.Monitor
	agent string // identity inside a MultiManager, empty standalone
}

// Option customizes a Manager at construction.
type Option func(*Manager)

// WithCounter wires an exact token counter for validated estimation.
func WithCounter(counter provider.TokenCounter) Option {
	return func(m *Manager) { m.est = estimator.New(counter) }
}

// WithSummarizer wires an LLM-backed summarizer for the summarize strategy.
func WithSummarizer(s provider.Summarizer) Option {
	return func(m *Manager) {
		m.strt = optimizer.Get(optimizer.ParseName(m.cfg.Strategy), m.est, s)
	}
}

// WithMonitor attaches an observability sink.
func WithMonitor(mon *monitor.Monitor) Option {
	return func(m *Manager) { m.mon = mon }
}

// WithMaxHistory overrides the event-history cap.
func WithMaxHistory(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// withAgent tags the manager with its MultiManager identity.
func withAgent(name string) Option {
	return func(m *Manager) { m.agent = name }
}

// New builds a Manager from cfg. The only fatal error is an invalid budget
// (output reserve >= model limit); every other anomaly degrades gracefully.
func New(cfg config.Config, opts ...Option) (*Manager, error) {
	var bdg budget.Budget
	var err error
	if cfg.ContextWindow > 0 {
		bdg, err = budget.AllocateWindow(cfg.Model, cfg.ContextWindow, cfg.OutputReserve)
	} else {
		bdg, err = budget.Allocate(cfg.Model, cfg.OutputReserve)
	}
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:         cfg,
		est:         estimator.New(nil),
		bdg:         bdg,
		maxHistory:  defaultMaxHistory,
		toolBudgets: make(map[string]config.ToolBudget),
		protected:   make(map[string]bool),
	}
	for name, tb := range cfg.ToolBudgets {
		m.toolBudgets[name] = tb
		if tb.Protected {
			m.protected[name] = true
		}
	}
	for _, name := range cfg.ProtectedTools {
		m.protected[name] = true
	}

	// Options may replace the estimator, so wire the ledger and strategy after.
	for _, opt := range opts {
		opt(m)
	}
	m.led = ledger.New(m.est, bdg)
	if m.strt == nil {
		m.strt = optimizer.Get(optimizer.ParseName(cfg.Strategy), m.est, nil)
	}
	return m, nil
}

// Process runs the optimize-if-needed decision for one prospective request.
// When auto-compaction triggers and the configured strategy beats the
// minimum-gain bar, the reduced messages are returned with Optimized=true;
// otherwise the original slice is returned untouched.
func (m *Manager) Process(ctx context.Context, msgs []provider.Message, systemPrompt string) (ProcessResult, error) {
	if systemPrompt != "" {
		m.led.TrackSystemPrompt(systemPrompt)
	}
	m.led.TrackHistory(msgs)
	tokensBefore := m.led.Total()

	res := ProcessResult{
		Messages:     msgs,
		TokensBefore: tokensBefore,
		TokensAfter:  tokensBefore,
		Utilization:  m.led.Utilization(),
	}

	if !m.cfg.AutoCompact || !m.bdg.CheckOverflow(tokensBefore, m.cfg.CompactThreshold) {
		return res, nil
	}

	target := int(float64(m.bdg.Usable) * m.cfg.CompactThreshold)
	optimized, optRes, err := m.strt.Optimize(ctx, msgs, target)
	if err != nil {
		return res, nil // degrade: keep the original conversation
	}

	if optRes.ReductionPercent < m.cfg.CompressionMinGainPct {
		// Revert: the gain is not worth the information loss (or the
		// "optimization" would have inflated the conversation).
		return res, nil
	}

	m.led.TrackHistory(optimized)
	res.Messages = optimized
	res.Optimized = true
	res.TokensAfter = m.led.Total()
	res.Utilization = m.led.Utilization()
	res.Strategy = optRes.StrategyUsed

	m.appendEvent(OptimizationEvent{
		Timestamp:    time.Now(),
		Type:         EventAutoCompact,
		Strategy:     optRes.StrategyUsed,
		TokensBefore: optRes.OriginalTokens,
		TokensAfter:  optRes.OptimizedTokens,
		TokensSaved:  optRes.TokensSaved,
		Details:      fmt.Sprintf("threshold %.2f, target %d tokens", m.cfg.CompactThreshold, target),
	})
	m.record(monitor.Record{
		Type:         string(EventAutoCompact),
		Strategy:     string(optRes.StrategyUsed),
		TokensBefore: optRes.OriginalTokens,
		TokensAfter:  optRes.OptimizedTokens,
	})
	return res, nil
}

// Compact forces a compaction regardless of the threshold. The result is
// kept whenever it saves tokens at all; the minimum-gain bar only applies to
// automatic compaction.
func (m *Manager) Compact(ctx context.Context, msgs []provider.Message) (ProcessResult, error) {
	m.led.TrackHistory(msgs)
	tokensBefore := m.led.Total()

	res := ProcessResult{
		Messages:     msgs,
		TokensBefore: tokensBefore,
		TokensAfter:  tokensBefore,
		Utilization:  m.led.Utilization(),
	}

	target := int(float64(m.bdg.Usable) * m.cfg.CompactThreshold)
	optimized, optRes, err := m.strt.Optimize(ctx, msgs, target)
	if err != nil || optRes.TokensSaved == 0 {
		return res, nil
	}

	m.led.TrackHistory(optimized)
	res.Messages = optimized
	res.Optimized = true
	res.TokensAfter = m.led.Total()
	res.Utilization = m.led.Utilization()
	res.Strategy = optRes.StrategyUsed

	m.appendEvent(OptimizationEvent{
		Timestamp:    time.Now(),
		Type:         EventManualCompact,
		Strategy:     optRes.StrategyUsed,
		TokensBefore: optRes.OriginalTokens,
		TokensAfter:  optRes.OptimizedTokens,
		TokensSaved:  optRes.TokensSaved,
	})
	m.record(monitor.Record{
		Type:         string(EventManualCompact),
		Strategy:     string(optRes.StrategyUsed),
		TokensBefore: optRes.OriginalTokens,
		TokensAfter:  optRes.OptimizedTokens,
	})
	return res, nil
}

// EstimateTokens delegates to the estimator. With validate=true and an exact
// counter configured, metrics report the heuristic deviation; otherwise
// metrics are nil.
func (m *Manager) EstimateTokens(ctx context.Context, text string, validate bool) (int, *estimator.Metrics) {
	if validate || m.cfg.EstimationMode == "validated" {
		return m.est.EstimateValidated(ctx, text)
	}
	return m.est.Estimate(text), nil
}

// History returns the bounded optimization-event log, oldest first.
func (m *Manager) History() []OptimizationEvent {
	out := make([]OptimizationEvent, len(m.history))
	copy(out, m.history)
	return out
}

// Stats returns a read-only snapshot for dashboards.
func (m *Manager) Stats() Stats {
	return Stats{
		Model:        m.bdg.Model,
		Budget:       m.bdg,
		Segments:     m.led.Snapshot(),
		TotalTokens:  m.led.Total(),
		Utilization:  m.led.Utilization(),
		TurnCount:    m.led.TurnCount(),
		MessageCount: m.led.MessageCount(),
		Warnings:     m.led.Warnings(),
		EventCount:   len(m.history),
	}
}

// ResolvedConfig returns the effective configuration and which source won.
func (m *Manager) ResolvedConfig() ResolvedConfig {
	return ResolvedConfig{Config: m.cfg, Source: m.cfg.Source}
}

// Budget returns the manager's immutable budget.
func (m *Manager) Budget() budget.Budget { return m.bdg }

// Reset clears the last snapshot hook and the optimization history so the
// manager can serve a fresh conversation. Ledger lifetime counters survive;
// pass resetLedger to clear those too.
func (m *Manager) Reset(resetLedger bool) {
	m.lastSnapshot = nil
	m.history = nil
	if resetLedger {
		m.led.Reset()
	}
}

func (m *Manager) appendEvent(ev OptimizationEvent) {
	m.history = append(m.history, ev)
	if len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
}

func (m *Manager) record(rec monitor.Record) {
	if m.mon == nil {
		return
	}
	rec.Agent = m.agent
	m.mon.Record(rec)
}
