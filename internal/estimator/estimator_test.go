package estimator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/apexion-ai/ctxbudget/internal/provider"
)

func TestEstimate(t *testing.T) {
	e := New(nil)

	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"empty string", "", 0},
		{"single char", "a", 1},
		{"four chars", "abcd", 1},
		{"five chars", "abcde", 2},
		{"eight chars", "abcdefgh", 2},
		{"1000 chars", strings.Repeat("x", 1000), 250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Estimate(tt.input)
			if got != tt.expected {
				t.Errorf("Estimate(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEstimateDeterministic(t *testing.T) {
	e := New(nil)
	text := "The quick brown fox jumps over the lazy dog."
	first := e.Estimate(text)
	second := e.Estimate(text) // cache hit
	if first != second {
		t.Fatalf("cache hit drifted: first=%d second=%d", first, second)
	}
	// A fresh estimator (cache miss) must agree too.
	if got := New(nil).Estimate(text); got != first {
		t.Fatalf("cache miss disagreed: %d vs %d", got, first)
	}
}

func TestEstimateMonotonic(t *testing.T) {
	e := New(nil)
	prev := 0
	for i := 1; i <= 64; i++ {
		got := e.Estimate(strings.Repeat("a", i))
		if got < prev {
			t.Fatalf("estimate decreased at length %d: %d < %d", i, got, prev)
		}
		prev = got
	}
}

func TestEstimateMessagesOverheadAdditive(t *testing.T) {
	e := New(nil)
	msgs := []provider.Message{
		provider.TextMessage(provider.RoleUser, "hello there"),
		provider.TextMessage(provider.RoleAssistant, "hi, how can I help?"),
	}

	contentSum := 0
	for _, m := range msgs {
		contentSum += e.Estimate(m.Text())
	}
	total := e.EstimateMessages(msgs)
	if total < contentSum {
		t.Fatalf("EstimateMessages(%d) < sum of per-message content estimates (%d)", total, contentSum)
	}
	if want := contentSum + 2*messageOverhead; total != want {
		t.Fatalf("EstimateMessages = %d, want %d", total, want)
	}
}

type fakeCounter struct {
	tokens int
	err    error
	calls  int
}

func (f *fakeCounter) CountTokens(ctx context.Context, text string) (int, error) {
	f.calls++
	return f.tokens, f.err
}

func TestEstimateValidated(t *testing.T) {
	counter := &fakeCounter{tokens: 10}
	e := New(counter)

	tokens, metrics := e.EstimateValidated(context.Background(), "twelve chars")
	if tokens != 10 {
		t.Errorf("validated tokens = %d, want 10", tokens)
	}
	if metrics == nil {
		t.Fatal("expected metrics with counter configured")
	}
	if metrics.HeuristicEstimate != 3 {
		t.Errorf("heuristic = %d, want 3", metrics.HeuristicEstimate)
	}
	if metrics.AccurateEstimate != 10 {
		t.Errorf("accurate = %d, want 10", metrics.AccurateEstimate)
	}
	if metrics.ErrorPct != 70.0 {
		t.Errorf("error pct = %.1f, want 70.0", metrics.ErrorPct)
	}
	if metrics.EstimatorUsed != "exact" {
		t.Errorf("estimator used = %q, want %q", metrics.EstimatorUsed, "exact")
	}
}

func TestEstimateValidatedFallsBackOnError(t *testing.T) {
	counter := &fakeCounter{err: fmt.Errorf("api unavailable")}
	e := New(counter)

	tokens, metrics := e.EstimateValidated(context.Background(), "twelve chars")
	if tokens != 3 {
		t.Errorf("fallback tokens = %d, want heuristic 3", tokens)
	}
	if metrics != nil {
		t.Error("expected nil metrics when counter fails")
	}
}

func TestEstimateValidatedNoCounter(t *testing.T) {
	e := New(nil)
	tokens, metrics := e.EstimateValidated(context.Background(), "twelve chars")
	if tokens != 3 {
		t.Errorf("tokens = %d, want 3", tokens)
	}
	if metrics != nil {
		t.Error("expected nil metrics without a counter")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	e := New(nil)
	texts := make([]string, 16)
	for i := range texts {
		texts[i] = strings.Repeat("y", i+1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, txt := range texts {
				_ = e.Estimate(txt)
			}
		}()
	}
	wg.Wait()

	for i, txt := range texts {
		want := (i + 1 + 3) / 4
		if got := e.Estimate(txt); got != want {
			t.Errorf("cached value corrupted for len %d: got %d, want %d", i+1, got, want)
		}
	}
}
