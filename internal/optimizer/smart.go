package optimizer

import (
	"context"

	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// smartStrategy tries the other strategies in a fixed priority order,
// cheapest information loss first, and accepts the first one that reaches
// the target. If none do, it returns the best partial result achieved.
type smartStrategy struct {
	est        *estimator.Estimator
	summarizer provider.Summarizer
}

func (s *smartStrategy) Name() Name { return Smart }

func (s *smartStrategy) Optimize(ctx context.Context, msgs []provider.Message, target int) ([]provider.Message, Result, error) {
	candidates := []Strategy{
		&pruneToolsStrategy{est: s.est},
		&summarizeStrategy{est: s.est, summarizer: s.summarizer},
		&slidingWindowStrategy{est: s.est},
		&truncateStrategy{est: s.est},
	}

	var bestMsgs []provider.Message
	var bestResult Result
	haveBest := false

	for _, strat := range candidates {
		if ctx.Err() != nil {
			break
		}
		out, res, err := strat.Optimize(ctx, msgs, target)
		if err != nil {
			continue
		}
		if res.OptimizedTokens <= target {
			return out, res, nil
		}
		if !haveBest || res.OptimizedTokens < bestResult.OptimizedTokens {
			bestMsgs, bestResult, haveBest = out, res, true
		}
	}

	if !haveBest {
		return msgs, makeResult(s.est, msgs, msgs, Smart), nil
	}
	return bestMsgs, bestResult, nil
}
