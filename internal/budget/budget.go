// Package budget allocates a model's context window across named conversation
// segments, leaving a reserve for the model's own output.
package budget

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidBudget is returned when the output reserve leaves no usable
// context. This is the one fatal configuration error: every downstream
// calculation would be meaningless.
var ErrInvalidBudget = errors.New("invalid budget: output reserve must be smaller than the model limit")

// DefaultOutputReserve is the number of tokens reserved for model output when
// the caller does not specify one.
const DefaultOutputReserve = 8192

// Segment names, shared with the ledger.
const (
	SegmentSystemPrompt = "system_prompt"
	SegmentRules        = "rules"
	SegmentSkills       = "skills"
	SegmentMemory       = "memory"
	SegmentToolsSchema  = "tools_schema"
	SegmentToolOutputs  = "tool_outputs"
	SegmentHistory      = "history"
	SegmentBuffer       = "buffer"
)

// Allocation weights in percent of Usable. The buffer takes its 5% plus
// whatever integer rounding leaves over, so the segments always sum to
// exactly Usable.
var segmentWeights = map[string]int{
	SegmentSystemPrompt: 10,
	SegmentRules:        5,
	SegmentSkills:       5,
	SegmentMemory:       10,
	SegmentToolsSchema:  5,
	SegmentToolOutputs:  15,
	SegmentHistory:      45,
}

// Budget is the token allotment for one model context window. Immutable once
// allocated; re-allocate when the model or reserve changes.
type Budget struct {
	Model         string
	ModelLimit    int
	OutputReserve int
	Usable        int // ModelLimit - OutputReserve

	SystemPrompt int
	Rules        int
	Skills       int
	Memory       int
	ToolsSchema  int
	ToolOutputs  int
	History      int
	Buffer       int
}

// Allocate computes a Budget for the named model. The model limit comes from
// the model table (unknown models fall back to a conservative default).
// outputReserve <= 0 uses DefaultOutputReserve.
func Allocate(model string, outputReserve int) (Budget, error) {
	return AllocateWindow(model, ContextWindow(model), outputReserve)
}

// AllocateWindow computes a Budget for an explicit context window, bypassing
// the model table. Used when configuration overrides the window size.
func AllocateWindow(model string, modelLimit, outputReserve int) (Budget, error) {
	if outputReserve <= 0 {
		outputReserve = DefaultOutputReserve
	}
	if outputReserve >= modelLimit {
		return Budget{}, fmt.Errorf("%w: reserve %d >= limit %d (model %q)",
			ErrInvalidBudget, outputReserve, modelLimit, model)
	}

	usable := modelLimit - outputReserve
	b := Budget{
		Model:         model,
		ModelLimit:    modelLimit,
		OutputReserve: outputReserve,
		Usable:        usable,

		SystemPrompt: usable * segmentWeights[SegmentSystemPrompt] / 100,
		Rules:        usable * segmentWeights[SegmentRules] / 100,
		Skills:       usable * segmentWeights[SegmentSkills] / 100,
		Memory:       usable * segmentWeights[SegmentMemory] / 100,
		ToolsSchema:  usable * segmentWeights[SegmentToolsSchema] / 100,
		ToolOutputs:  usable * segmentWeights[SegmentToolOutputs] / 100,
		History:      usable * segmentWeights[SegmentHistory] / 100,
	}
	// The buffer absorbs the rounding remainder so segments sum to Usable.
	b.Buffer = usable - b.SystemPrompt - b.Rules - b.Skills - b.Memory -
		b.ToolsSchema - b.ToolOutputs - b.History
	return b, nil
}

// CheckOverflow reports whether currentTotal has reached the given fraction
// of the usable budget.
func (b Budget) CheckOverflow(currentTotal int, threshold float64) bool {
	return float64(currentTotal) >= float64(b.Usable)*threshold
}

// Segments returns the named sub-allocations as a map.
func (b Budget) Segments() map[string]int {
	return map[string]int{
		SegmentSystemPrompt: b.SystemPrompt,
		SegmentRules:        b.Rules,
		SegmentSkills:       b.Skills,
		SegmentMemory:       b.Memory,
		SegmentToolsSchema:  b.ToolsSchema,
		SegmentToolOutputs:  b.ToolOutputs,
		SegmentHistory:      b.History,
		SegmentBuffer:       b.Buffer,
	}
}

// Format returns a human-readable allocation table.
func (b Budget) Format() string {
	var sb strings.Builder
	model := b.Model
	if model == "" {
		model = "(unnamed)"
	}
	fmt.Fprintf(&sb, "Token budget for %s (%d window, %d reserved for output)\n", model, b.ModelLimit, b.OutputReserve)
	sb.WriteString("─────────────────────────────────────\n")
	rows := []struct {
		name   string
		tokens int
	}{
		{"System prompt", b.SystemPrompt},
		{"Rules", b.Rules},
		{"Skills", b.Skills},
		{"Memory", b.Memory},
		{"Tool schemas", b.ToolsSchema},
		{"Tool outputs", b.ToolOutputs},
		{"History", b.History},
		{"Buffer", b.Buffer},
	}
	for _, r := range rows {
		fmt.Fprintf(&sb, "%-15s %8d tokens\n", r.name, r.tokens)
	}
	sb.WriteString("─────────────────────────────────────\n")
	fmt.Fprintf(&sb, "%-15s %8d tokens\n", "Usable", b.Usable)
	return sb.String()
}
