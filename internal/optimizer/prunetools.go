package optimizer

import (
	"context"
	"fmt"

	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// pruneToolsStrategy shrinks tool traffic before touching the narrative:
// old tool_result payloads are replaced oldest-first with a compact
// placeholder noting how much was elided. Error results are never pruned.
// Falls back to truncation if pruning alone cannot reach the target.
type pruneToolsStrategy struct {
	est *estimator.Estimator
}

func (s *pruneToolsStrategy) Name() Name { return PruneTools }

func (s *pruneToolsStrategy) Optimize(ctx context.Context, msgs []provider.Message, target int) ([]provider.Message, Result, error) {
	out := provider.CloneMessages(msgs)

	// Prune oldest-first until under target or out of candidates.
	for i := range out {
		if s.est.EstimateMessages(out) <= target {
			break
		}
		for j := range out[i].Content {
			c := &out[i].Content[j]
			if c.Type != provider.ContentTypeToolResult || c.IsError || len(c.ToolResult) == 0 {
				continue
			}
			placeholder := fmt.Sprintf("[tool output pruned: %d chars]", len(c.ToolResult))
			if len(placeholder) < len(c.ToolResult) {
				c.ToolResult = placeholder
			}
		}
	}

	if s.est.EstimateMessages(out) > target {
		fallback := &truncateStrategy{est: s.est}
		out, _, _ = fallback.Optimize(ctx, out, target)
	}

	return out, makeResult(s.est, msgs, out, PruneTools), nil
}
