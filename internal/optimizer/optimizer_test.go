package optimizer

import (
	"context"
	"strings"
	"testing"

	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

func user(text string) provider.Message {
	return provider.TextMessage(provider.RoleUser, text)
}

func assistant(text string) provider.Message {
	return provider.TextMessage(provider.RoleAssistant, text)
}

func system(text string) provider.Message {
	return provider.TextMessage(provider.RoleSystem, text)
}

// conversation builds n user/assistant exchanges of padded messages.
func conversation(n, padChars int) []provider.Message {
	pad := strings.Repeat("x", padChars)
	var msgs []provider.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs, user("question "+pad), assistant("answer "+pad))
	}
	return msgs
}

func toolExchange(id, result string) []provider.Message {
	return []provider.Message{
		{
			Role:    provider.RoleAssistant,
			Content: []provider.Content{{Type: provider.ContentTypeToolUse, ToolUseID: id, ToolName: "grep"}},
		},
		{
			Role:    provider.RoleUser,
			Content: []provider.Content{{Type: provider.ContentTypeToolResult, ToolUseID: id, ToolResult: result}},
		},
	}
}

func TestTruncateDropsOldestFirst(t *testing.T) {
	est := estimator.New(nil)
	msgs := append([]provider.Message{system("be terse")}, conversation(10, 400)...)
	target := est.EstimateMessages(msgs) / 2

	out, res, err := Get(Truncate, est, nil).Optimize(context.Background(), msgs, target)
	if err != nil {
		t.Fatal(err)
	}
	if res.OptimizedTokens > target {
		t.Errorf("optimized tokens %d over target %d", res.OptimizedTokens, target)
	}
	if out[0].Role != provider.RoleSystem {
		t.Error("system message was dropped")
	}
	// The newest message survives.
	if got, want := out[len(out)-1].Text(), msgs[len(msgs)-1].Text(); got != want {
		t.Error("newest message did not survive truncation")
	}
	if res.TokensSaved != res.OriginalTokens-res.OptimizedTokens {
		t.Errorf("tokens saved %d inconsistent with before/after %d/%d",
			res.TokensSaved, res.OriginalTokens, res.OptimizedTokens)
	}
}

func TestTruncateNeverNegativeSavings(t *testing.T) {
	est := estimator.New(nil)
	msgs := []provider.Message{user("hi")}

	_, res, err := Get(Truncate, est, nil).Optimize(context.Background(), msgs, 1_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if res.TokensSaved < 0 {
		t.Errorf("tokens saved is negative: %d", res.TokensSaved)
	}
}

func TestSlidingWindowKeepsWholeRecentTurns(t *testing.T) {
	est := estimator.New(nil)
	msgs := append([]provider.Message{system("be terse")}, conversation(8, 400)...)
	target := est.EstimateMessages(msgs) / 3

	out, res, err := Get(SlidingWindow, est, nil).Optimize(context.Background(), msgs, target)
	if err != nil {
		t.Fatal(err)
	}
	if res.OptimizedTokens > target {
		t.Errorf("optimized tokens %d over target %d", res.OptimizedTokens, target)
	}
	if out[0].Role != provider.RoleSystem {
		t.Error("system message was dropped")
	}
	// Turns are kept whole: after the system message the window starts at a
	// user message and ends at the final assistant message.
	if out[1].Role != provider.RoleUser {
		t.Errorf("window starts mid-turn with role %s", out[1].Role)
	}
	if out[len(out)-1].Role != provider.RoleAssistant {
		t.Errorf("window ends mid-turn with role %s", out[len(out)-1].Role)
	}
}

func TestPruneToolsMasksToolResultsFirst(t *testing.T) {
	est := estimator.New(nil)
	big := strings.Repeat("output ", 500)
	var msgs []provider.Message
	msgs = append(msgs, user("search the repo"))
	msgs = append(msgs, toolExchange("t1", big)...)
	msgs = append(msgs, toolExchange("t2", big)...)
	msgs = append(msgs, assistant("found it"))

	target := est.EstimateMessages(msgs) / 4
	out, res, err := Get(PruneTools, est, nil).Optimize(context.Background(), msgs, target)
	if err != nil {
		t.Fatal(err)
	}
	if res.OptimizedTokens > target {
		t.Errorf("optimized tokens %d over target %d", res.OptimizedTokens, target)
	}

	// Narrative messages survive; the tool payloads carry prune markers.
	var sawMarker, sawNarrative bool
	for _, msg := range out {
		for _, c := range msg.Content {
			if c.Type == provider.ContentTypeToolResult && strings.Contains(c.ToolResult, "pruned") {
				sawMarker = true
			}
		}
		if msg.Text() == "search the repo" || msg.Text() == "found it" {
			sawNarrative = true
		}
	}
	if !sawMarker {
		t.Error("no prune marker found in tool results")
	}
	if !sawNarrative {
		t.Error("narrative messages did not survive pruning")
	}
}

func TestPruneToolsDoesNotMutateInput(t *testing.T) {
	est := estimator.New(nil)
	big := strings.Repeat("output ", 500)
	msgs := append([]provider.Message{user("go")}, toolExchange("t1", big)...)

	_, _, err := Get(PruneTools, est, nil).Optimize(context.Background(), msgs, 10)
	if err != nil {
		t.Fatal(err)
	}
	if msgs[2].Content[0].ToolResult != big {
		t.Error("input message was mutated in place")
	}
}

func TestSummarizeReplacesOlderBlock(t *testing.T) {
	est := estimator.New(nil)
	msgs := append([]provider.Message{system("be terse")}, conversation(10, 400)...)
	before := est.EstimateMessages(msgs)

	out, res, err := Get(Summarize, est, nil).Optimize(context.Background(), msgs, before/2)
	if err != nil {
		t.Fatal(err)
	}
	if res.OptimizedTokens >= before {
		t.Errorf("summarize did not shrink: %d -> %d", before, res.OptimizedTokens)
	}
	var sawSummary bool
	for _, msg := range out {
		if strings.HasPrefix(msg.Text(), summaryPrefix) {
			sawSummary = true
		}
	}
	if !sawSummary {
		t.Error("no summary message injected")
	}
	// The most recent turns are untouched.
	if got, want := out[len(out)-1].Text(), msgs[len(msgs)-1].Text(); got != want {
		t.Error("most recent turn was not preserved verbatim")
	}
}

func TestSummarizeRefusesWhenBlockIsSmall(t *testing.T) {
	est := estimator.New(nil)
	// Three one-word turns: any summary would be bigger than the block.
	msgs := conversation(3, 0)
	before := est.EstimateMessages(msgs)

	out, res, err := Get(Summarize, est, nil).Optimize(context.Background(), msgs, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.TokensSaved != 0 {
		t.Errorf("expected zero savings on refusal, got %d", res.TokensSaved)
	}
	if res.OptimizedTokens != before {
		t.Errorf("refusal changed token count: %d -> %d", before, res.OptimizedTokens)
	}
	if len(out) != len(msgs) {
		t.Error("refusal altered the message sequence")
	}
}

func TestSmartReachesTarget(t *testing.T) {
	est := estimator.New(nil)
	big := strings.Repeat("output ", 500)
	var msgs []provider.Message
	msgs = append(msgs, system("be terse"))
	msgs = append(msgs, conversation(6, 200)...)
	msgs = append(msgs, toolExchange("t1", big)...)
	msgs = append(msgs, conversation(2, 200)...)

	target := est.EstimateMessages(msgs) / 2
	_, res, err := Get(Smart, est, nil).Optimize(context.Background(), msgs, target)
	if err != nil {
		t.Fatal(err)
	}
	if res.OptimizedTokens > target {
		t.Errorf("smart did not reach target: %d > %d", res.OptimizedTokens, target)
	}
}

func TestSmartReturnsBestPartialWhenTargetUnreachable(t *testing.T) {
	est := estimator.New(nil)
	msgs := conversation(2, 4000)

	// Target of 1 token is unreachable; smart must still shrink as far as it can.
	out, res, err := Get(Smart, est, nil).Optimize(context.Background(), msgs, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("smart emptied the conversation")
	}
	if res.OptimizedTokens >= res.OriginalTokens {
		t.Errorf("best partial did not shrink: %d -> %d", res.OriginalTokens, res.OptimizedTokens)
	}
}

func TestGetFallsBackToSmart(t *testing.T) {
	est := estimator.New(nil)
	if got := Get(Name("bogus"), est, nil).Name(); got != Smart {
		t.Errorf("unknown strategy resolved to %q, want smart", got)
	}
	if got := ParseName("definitely-not-a-strategy"); got != Smart {
		t.Errorf("ParseName fallback = %q, want smart", got)
	}
	if got := ParseName("truncate"); got != Truncate {
		t.Errorf("ParseName(truncate) = %q", got)
	}
}
