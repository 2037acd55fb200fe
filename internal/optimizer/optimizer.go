// Package optimizer implements the pluggable reduction strategies that shrink
// a conversation to a target token count: truncate, sliding-window,
// summarize, prune-tools, and the smart meta-strategy that tries them in
// priority order.
package optimizer

import (
	"context"

	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// Name identifies a reduction strategy.
type Name string

const (
	Smart         Name = "smart"
	Truncate      Name = "truncate"
	SlidingWindow Name = "sliding_window"
	Summarize     Name = "summarize"
	PruneTools    Name = "prune_tools"
)

// ParseName normalizes a strategy name. Unknown or empty names fall back to
// Smart rather than failing.
func ParseName(s string) Name {
	switch Name(s) {
	case Truncate, SlidingWindow, Summarize, PruneTools, Smart:
		return Name(s)
	default:
		return Smart
	}
}

// Result records the accounting for one optimization attempt.
type Result struct {
	OriginalTokens   int
	OptimizedTokens  int
	TokensSaved      int // clamped at 0, never negative
	ReductionPercent float64
	StrategyUsed     Name
}

// Strategy reduces a message sequence toward a target token count. Strategies
// are stateless; the returned slice never aliases mutations of the input.
type Strategy interface {
	Name() Name
	Optimize(ctx context.Context, msgs []provider.Message, target int) ([]provider.Message, Result, error)
}

// Get returns the strategy for name. Unknown names fall back to Smart.
// summarizer may be nil; the Summarize strategy then uses the deterministic
// condenser.
func Get(name Name, est *estimator.Estimator, summarizer provider.Summarizer) Strategy {
	switch name {
	case Truncate:
		return &truncateStrategy{est: est}
	case SlidingWindow:
		return &slidingWindowStrategy{est: est}
	case Summarize:
		return &summarizeStrategy{est: est, summarizer: summarizer}
	case PruneTools:
		return &pruneToolsStrategy{est: est}
	default:
		return &smartStrategy{est: est, summarizer: summarizer}
	}
}

// makeResult measures before/after and fills in the derived fields.
func makeResult(est *estimator.Estimator, original, optimized []provider.Message, used Name) Result {
	before := est.EstimateMessages(original)
	after := est.EstimateMessages(optimized)
	saved := before - after
	if saved < 0 {
		saved = 0
	}
	r := Result{
		OriginalTokens:  before,
		OptimizedTokens: after,
		TokensSaved:     saved,
		StrategyUsed:    used,
	}
	if before > 0 {
		r.ReductionPercent = float64(saved) / float64(before) * 100
	}
	return r
}
