package optimizer

import (
	"context"

	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// slidingWindowStrategy keeps the leading system message plus the most recent
// whole turns that fit the target, dropping the middle of the conversation.
type slidingWindowStrategy struct {
	est *estimator.Estimator
}

func (s *slidingWindowStrategy) Name() Name { return SlidingWindow }

func (s *slidingWindowStrategy) Optimize(ctx context.Context, msgs []provider.Message, target int) ([]provider.Message, Result, error) {
	system, rest := splitLeadingSystem(msgs)
	turns := splitTurns(rest)

	budget := target - s.est.EstimateMessages(system)

	// Walk turns newest to oldest, keeping whole turns while they fit.
	var kept []turn
	used := 0
	for i := len(turns) - 1; i >= 0; i-- {
		cost := s.est.EstimateMessages(turns[i].msgs)
		if used+cost > budget && len(kept) > 0 {
			break
		}
		if used+cost > budget && len(kept) == 0 {
			// Even the newest turn alone is over budget; keep it anyway so the
			// conversation is never emptied, and let the caller judge the result.
			kept = append(kept, turns[i])
			used += cost
			break
		}
		kept = append([]turn{turns[i]}, kept...)
		used += cost
	}

	out := append(append([]provider.Message{}, system...), flattenTurns(kept)...)
	return out, makeResult(s.est, msgs, out, SlidingWindow), nil
}
