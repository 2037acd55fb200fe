package optimizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// keepRecentTurns is how many trailing turns the summarize strategy leaves
// untouched; everything older is the summarization block.
const keepRecentTurns = 2

// summaryPrefix marks injected summary messages so later compactions can
// recognize them.
const summaryPrefix = "[Previous conversation summary]\n\n"

// summarizeStrategy replaces a contiguous block of older messages with a
// single condensed user message. If the replacement would not be strictly
// smaller than the block it replaces, the strategy refuses and returns the
// input unchanged with zero savings.
type summarizeStrategy struct {
	est        *estimator.Estimator
	summarizer provider.Summarizer
}

func (s *summarizeStrategy) Name() Name { return Summarize }

func (s *summarizeStrategy) Optimize(ctx context.Context, msgs []provider.Message, target int) ([]provider.Message, Result, error) {
	system, rest := splitLeadingSystem(msgs)
	turns := splitTurns(rest)
	if len(turns) <= keepRecentTurns {
		return msgs, makeResult(s.est, msgs, msgs, Summarize), nil
	}

	block := flattenTurns(turns[:len(turns)-keepRecentTurns])
	recent := flattenTurns(turns[len(turns)-keepRecentTurns:])

	summarizer := s.summarizer
	if summarizer == nil {
		summarizer = Condenser{}
	}
	summary, err := summarizer.Summarize(ctx, "", block)
	if err != nil {
		// Degrade to no-op: never fail the caller over a summarizer hiccup.
		return msgs, makeResult(s.est, msgs, msgs, Summarize), nil
	}

	replacement := provider.TextMessage(provider.RoleUser, summaryPrefix+summary)
	if s.est.EstimateMessage(replacement) >= s.est.EstimateMessages(block) {
		// Refuse rather than inflate the conversation.
		return msgs, makeResult(s.est, msgs, msgs, Summarize), nil
	}

	out := append(append([]provider.Message{}, system...), replacement)
	out = append(out, recent...)
	return out, makeResult(s.est, msgs, out, Summarize), nil
}

// Condenser is the deterministic fallback summarizer: an extractive condensed
// note built from the block's endpoints, with no LLM involved.
type Condenser struct{}

// Summarize builds a short deterministic summary of messages.
func (Condenser) Summarize(ctx context.Context, previousSummary string, messages []provider.Message) (string, error) {
	var first, last string
	for _, msg := range messages {
		if t := msg.Text(); t != "" {
			if first == "" && msg.Role == provider.RoleUser {
				first = t
			}
			last = t
		}
	}

	var sb strings.Builder
	if previousSummary != "" {
		sb.WriteString(previousSummary)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "%d earlier messages condensed.", len(messages))
	if first != "" {
		fmt.Fprintf(&sb, " Initial request: %s.", clip(first, 200))
	}
	if last != "" && last != first {
		fmt.Fprintf(&sb, " Most recent: %s.", clip(last, 200))
	}
	return sb.String(), nil
}

// clip shortens s to at most n bytes on a rune boundary.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n] + "..."
}
