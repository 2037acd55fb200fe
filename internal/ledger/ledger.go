// Package ledger keeps the running token account for one conversation: how
// many tokens each named segment currently consumes against its allocation.
package ledger

import (
	"fmt"
	"sort"

	"github.com/apexion-ai/ctxbudget/internal/budget"
	"github.com/apexion-ai/ctxbudget/internal/estimator"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// highWaterMark is the per-segment utilization at which a warning is raised.
const highWaterMark = 0.9

// Segment is one line of the account: current tokens against the allocation.
type Segment struct {
	Tokens int
	Budget int
}

// Utilization returns tokens/budget, or 0 when the segment has no budget.
func (s Segment) Utilization() float64 {
	if s.Budget == 0 {
		return 0
	}
	return float64(s.Tokens) / float64(s.Budget)
}

// Ledger tracks per-segment token usage. It is owned by exactly one context
// manager and shares the manager's single-threaded discipline; it does no
// locking of its own.
type Ledger struct {
	est    *estimator.Estimator
	budget budget.Budget

	segments     map[string]*Segment
	turnCount    int
	messageCount int
}

// New creates a ledger with one zeroed segment per budget allocation.
func New(est *estimator.Estimator, b budget.Budget) *Ledger {
	l := &Ledger{
		est:      est,
		budget:   b,
		segments: make(map[string]*Segment),
	}
	for name, alloc := range b.Segments() {
		if name == budget.SegmentBuffer {
			continue // buffer holds slack, nothing is tracked against it
		}
		l.segments[name] = &Segment{Budget: alloc}
	}
	return l
}

// TrackHistory re-estimates the conversation history segment and refreshes
// the message and turn counters.
func (l *Ledger) TrackHistory(msgs []provider.Message) {
	l.segments[budget.SegmentHistory].Tokens = l.est.EstimateMessages(msgs)
	l.messageCount = len(msgs)
	l.turnCount = CountTurns(msgs)
}

// TrackSystemPrompt re-estimates the system prompt segment.
func (l *Ledger) TrackSystemPrompt(text string) {
	l.segments[budget.SegmentSystemPrompt].Tokens = l.est.Estimate(text)
}

// TrackTools re-estimates the tool-schema segment.
func (l *Ledger) TrackTools(schemas []provider.ToolSchema) {
	l.segments[budget.SegmentToolsSchema].Tokens = l.est.EstimateTools(schemas)
}

// TrackSegment re-estimates an arbitrary named segment (rules, skills,
// memory, tool_outputs). Unknown names are ignored.
func (l *Ledger) TrackSegment(name, text string) {
	if seg, ok := l.segments[name]; ok {
		seg.Tokens = l.est.Estimate(text)
	}
}

// Total returns the sum of all segment token counts.
func (l *Ledger) Total() int {
	total := 0
	for _, seg := range l.segments {
		total += seg.Tokens
	}
	return total
}

// Utilization returns Total divided by the usable budget.
func (l *Ledger) Utilization() float64 {
	if l.budget.Usable == 0 {
		return 0
	}
	return float64(l.Total()) / float64(l.budget.Usable)
}

// TurnCount returns the number of completed user/assistant exchanges seen in
// the last tracked history.
func (l *Ledger) TurnCount() int { return l.turnCount }

// MessageCount returns the number of messages in the last tracked history.
func (l *Ledger) MessageCount() int { return l.messageCount }

// Warnings returns one message per segment whose utilization has crossed the
// high-water mark. Empty when no segment is stressed. Order is stable.
func (l *Ledger) Warnings() []string {
	names := make([]string, 0, len(l.segments))
	for name := range l.segments {
		names = append(names, name)
	}
	sort.Strings(names)

	var warnings []string
	for _, name := range names {
		seg := l.segments[name]
		if u := seg.Utilization(); u >= highWaterMark {
			warnings = append(warnings, fmt.Sprintf(
				"segment %s at %.0f%% of its budget (%d/%d tokens)",
				name, u*100, seg.Tokens, seg.Budget))
		}
	}
	return warnings
}

// Snapshot returns a copy of the current per-segment state.
func (l *Ledger) Snapshot() map[string]Segment {
	out := make(map[string]Segment, len(l.segments))
	for name, seg := range l.segments {
		out[name] = *seg
	}
	return out
}

// Reset zeroes all segment tokens and the lifetime counters. Only the owning
// manager calls this.
func (l *Ledger) Reset() {
	for _, seg := range l.segments {
		seg.Tokens = 0
	}
	l.turnCount = 0
	l.messageCount = 0
}

// CountTurns counts completed user+assistant exchanges with a deterministic
// role-alternation scan: a turn closes when an assistant message follows a
// user message (tool_result exchanges stay inside the turn).
func CountTurns(msgs []provider.Message) int {
	turns := 0
	awaitingAssistant := false
	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleUser:
			if !msg.HasToolResult() {
				awaitingAssistant = true
			}
		case provider.RoleAssistant:
			if awaitingAssistant && !msg.HasToolUse() {
				turns++
				awaitingAssistant = false
			}
		}
	}
	return turns
}
