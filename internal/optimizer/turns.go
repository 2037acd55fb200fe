package optimizer

import "github.com/apexion-ai/ctxbudget/internal/provider"

// turn is a logical conversation round: a user message plus everything up to
// (and including) the assistant reply that answers it. Assistant↔tool_result
// chains stay inside the turn.
type turn struct {
	msgs []provider.Message
}

// splitLeadingSystem separates a leading system message (if any) from the
// rest of the conversation.
func splitLeadingSystem(msgs []provider.Message) (system []provider.Message, rest []provider.Message) {
	if len(msgs) > 0 && msgs[0].Role == provider.RoleSystem {
		return msgs[:1], msgs[1:]
	}
	return nil, msgs
}

// splitTurns slices a flat message list into turns. A new turn starts at a
// user message carrying text (not just tool_results) when the previous
// assistant message has no pending tool_use.
func splitTurns(msgs []provider.Message) []turn {
	if len(msgs) == 0 {
		return nil
	}
	var turns []turn
	start := 0
	for i := 1; i < len(msgs); i++ {
		msg := msgs[i]
		if msg.Role != provider.RoleUser || msg.Text() == "" {
			continue
		}
		prev := msgs[i-1]
		if prev.Role == provider.RoleAssistant && !prev.HasToolUse() {
			turns = append(turns, turn{msgs: msgs[start:i]})
			start = i
		}
	}
	if start < len(msgs) {
		turns = append(turns, turn{msgs: msgs[start:]})
	}
	return turns
}

// RecentTurns returns the leading system message (if any) plus the newest n
// whole turns. n <= 0 returns just the system message; n beyond the turn
// count returns the input unchanged.
func RecentTurns(msgs []provider.Message, n int) []provider.Message {
	system, rest := splitLeadingSystem(msgs)
	turns := splitTurns(rest)
	if n <= 0 {
		return append([]provider.Message{}, system...)
	}
	if n >= len(turns) {
		return msgs
	}
	out := append([]provider.Message{}, system...)
	return append(out, flattenTurns(turns[len(turns)-n:])...)
}

// flattenTurns concatenates turns back into a message list.
func flattenTurns(turns []turn) []provider.Message {
	var out []provider.Message
	for _, t := range turns {
		out = append(out, t.msgs...)
	}
	return out
}
