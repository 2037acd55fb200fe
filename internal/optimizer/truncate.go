package optimizer

import (
	"context"

	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// truncateStrategy drops the oldest non-system messages until the sequence
// fits the target. Bluntest strategy, last resort.
type truncateStrategy struct {
	est *estimator.Estimator
}

func (s *truncateStrategy) Name() Name { return Truncate }

func (s *truncateStrategy) Optimize(ctx context.Context, msgs []provider.Message, target int) ([]provider.Message, Result, error) {
	system, rest := splitLeadingSystem(msgs)

	kept := rest
	for len(kept) > 1 && s.est.EstimateMessages(system)+s.est.EstimateMessages(kept) > target {
		kept = kept[1:]
	}

	out := append(append([]provider.Message{}, system...), kept...)
	return out, makeResult(s.est, msgs, out, Truncate), nil
}
