package ledger

import (
	"strings"
	"testing"

	"github.com/apexion-ai/ctxbudget/internal/budget"
	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

func newTestLedger(t *testing.T, limit, reserve int) *Ledger {
	t.Helper()
	b, err := budget.AllocateWindow("test-model", limit, reserve)
	if err != nil {
		t.Fatal(err)
	}
	return New(estimator.New(nil), b)
}

func TestTrackHistory(t *testing.T) {
	l := newTestLedger(t, 100000, 8192)
	est := estimator.New(nil)

	msgs := []provider.Message{
		provider.TextMessage(provider.RoleUser, "what does this function do?"),
		provider.TextMessage(provider.RoleAssistant, "it parses the config file."),
		provider.TextMessage(provider.RoleUser, "thanks"),
	}
	l.TrackHistory(msgs)

	if got, want := l.Total(), est.EstimateMessages(msgs); got != want {
		t.Errorf("total = %d, want %d", got, want)
	}
	if l.MessageCount() != 3 {
		t.Errorf("message count = %d, want 3", l.MessageCount())
	}
	if l.TurnCount() != 1 {
		t.Errorf("turn count = %d, want 1", l.TurnCount())
	}

	// Re-tracking overwrites rather than accumulates.
	l.TrackHistory(msgs[:1])
	if got, want := l.Total(), est.EstimateMessages(msgs[:1]); got != want {
		t.Errorf("total after re-track = %d, want %d", got, want)
	}
	if l.MessageCount() != 1 {
		t.Errorf("message count after re-track = %d, want 1", l.MessageCount())
	}
}

func TestTotalSumsAllSegments(t *testing.T) {
	l := newTestLedger(t, 100000, 8192)

	l.TrackSystemPrompt(strings.Repeat("s", 400)) // 100 tokens
	l.TrackSegment(budget.SegmentRules, strings.Repeat("r", 200))
	l.TrackSegment(budget.SegmentMemory, strings.Repeat("m", 200))
	l.TrackTools([]provider.ToolSchema{{Name: "grep", Description: "search files"}})

	sum := 0
	for _, seg := range l.Snapshot() {
		sum += seg.Tokens
	}
	if l.Total() != sum {
		t.Errorf("Total() = %d, want segment sum %d", l.Total(), sum)
	}
	if l.Total() == 0 {
		t.Error("expected non-zero total after tracking")
	}
}

func TestUtilization(t *testing.T) {
	l := newTestLedger(t, 10000, 2000) // usable 8000
	l.TrackSystemPrompt(strings.Repeat("x", 16000)) // 4000 tokens

	if got := l.Utilization(); got != 0.5 {
		t.Errorf("utilization = %v, want 0.5", got)
	}
}

func TestWarnings(t *testing.T) {
	l := newTestLedger(t, 10000, 2000) // usable 8000, system_prompt budget 800

	if w := l.Warnings(); len(w) != 0 {
		t.Fatalf("expected no warnings on empty ledger, got %v", w)
	}

	// 790 tokens of 800 is over the 0.9 high-water mark.
	l.TrackSystemPrompt(strings.Repeat("x", 3160))
	w := l.Warnings()
	if len(w) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(w), w)
	}
	if !strings.Contains(w[0], budget.SegmentSystemPrompt) {
		t.Errorf("warning %q does not name the stressed segment", w[0])
	}
}

func TestReset(t *testing.T) {
	l := newTestLedger(t, 100000, 8192)
	l.TrackHistory([]provider.Message{
		provider.TextMessage(provider.RoleUser, "hello"),
		provider.TextMessage(provider.RoleAssistant, "hi"),
	})
	l.Reset()
	if l.Total() != 0 {
		t.Errorf("total after reset = %d, want 0", l.Total())
	}
	if l.TurnCount() != 0 || l.MessageCount() != 0 {
		t.Errorf("counters after reset = (%d, %d), want (0, 0)", l.TurnCount(), l.MessageCount())
	}
}

func TestCountTurns(t *testing.T) {
	user := func(s string) provider.Message { return provider.TextMessage(provider.RoleUser, s) }
	assistant := func(s string) provider.Message { return provider.TextMessage(provider.RoleAssistant, s) }
	toolUse := provider.Message{
		Role:    provider.RoleAssistant,
		Content: []provider.Content{{Type: provider.ContentTypeToolUse, ToolUseID: "t1", ToolName: "grep"}},
	}
	toolResult := provider.Message{
		Role:    provider.RoleUser,
		Content: []provider.Content{{Type: provider.ContentTypeToolResult, ToolUseID: "t1", ToolResult: "match"}},
	}

	tests := []struct {
		name string
		msgs []provider.Message
		want int
	}{
		{"empty", nil, 0},
		{"single user message", []provider.Message{user("hi")}, 0},
		{"one exchange", []provider.Message{user("hi"), assistant("hello")}, 1},
		{"two exchanges", []provider.Message{user("a"), assistant("b"), user("c"), assistant("d")}, 2},
		{"tool chain stays in one turn", []provider.Message{user("run it"), toolUse, toolResult, assistant("done")}, 1},
		{"dangling tool use", []provider.Message{user("run it"), toolUse}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountTurns(tt.msgs); got != tt.want {
				t.Errorf("CountTurns = %d, want %d", got, tt.want)
			}
		})
	}
}
