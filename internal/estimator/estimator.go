// Package estimator converts text and messages into token counts. The fast
// path is a chars/4 heuristic; validated mode additionally queries an exact
// counter (when one is configured) and reports the deviation.
package estimator

import (
	"context"
	"math"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// messageOverhead is the fixed per-message token cost added on top of the
// content estimate, covering role markers and structural framing.
const messageOverhead = 4

// Metrics reports the heuristic/exact deviation for one validated estimate.
// Only produced when validated mode runs with a counter configured.
type Metrics struct {
	HeuristicEstimate int
	AccurateEstimate  int
	ErrorPct          float64
	EstimatorUsed     string // "heuristic" | "exact"
}

// Estimator estimates token counts. Heuristic results for identical text are
// cached; a cache hit is value-identical to a miss. Safe for concurrent use.
type Estimator struct {
	mu      sync.RWMutex
	cache   map[[32]byte]int
	counter provider.TokenCounter // nil = heuristic only
}

// New creates an Estimator. counter may be nil; validated estimates then fall
// back to the heuristic silently.
func New(counter provider.TokenCounter) *Estimator {
	return &Estimator{
		cache:   make(map[[32]byte]int),
		counter: counter,
	}
}

// Estimate returns the heuristic token count for text: ceil(len/4).
// Deterministic, O(len), and monotonic in text length.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	key := blake3.Sum256([]byte(text))

	e.mu.RLock()
	tokens, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return tokens
	}

	tokens = heuristic(text)

	e.mu.Lock()
	e.cache[key] = tokens
	e.mu.Unlock()
	return tokens
}

// EstimateValidated returns the best available token count for text. When an
// exact counter is configured and reachable it returns the exact count plus
// deviation metrics; otherwise it returns the heuristic count and nil metrics.
func (e *Estimator) EstimateValidated(ctx context.Context, text string) (int, *Metrics) {
	h := e.Estimate(text)
	if e.counter == nil {
		return h, nil
	}
	exact, err := e.counter.CountTokens(ctx, text)
	if err != nil || exact <= 0 {
		return h, nil
	}
	return exact, &Metrics{
		HeuristicEstimate: h,
		AccurateEstimate:  exact,
		ErrorPct:          math.Abs(float64(h-exact)) / float64(exact) * 100,
		EstimatorUsed:     "exact",
	}
}

// EstimateMessage returns the heuristic token count for one message,
// including the per-message overhead.
func (e *Estimator) EstimateMessage(msg provider.Message) int {
	total := messageOverhead
	for _, c := range msg.Content {
		total += heuristic(c.Text)
		total += heuristic(c.ToolResult)
		total += heuristic(string(c.ToolInput))
		total += heuristic(c.ToolName)
	}
	return total
}

// EstimateMessages sums per-message estimates. The result is always at least
// the sum of the content estimates: overhead is additive, never negative.
func (e *Estimator) EstimateMessages(msgs []provider.Message) int {
	total := 0
	for _, msg := range msgs {
		total += e.EstimateMessage(msg)
	}
	return total
}

// EstimateTools returns the heuristic token count for a tool-schema list.
func (e *Estimator) EstimateTools(tools []provider.ToolSchema) int {
	total := 0
	for _, t := range tools {
		total += heuristic(t.Name) + heuristic(t.Description)
		for k := range t.Parameters {
			total += heuristic(k) + messageOverhead
		}
	}
	return total
}

// heuristic is the uncached chars/4 estimate, rounded up.
func heuristic(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
