package budget

import "strings"

// defaultContextWindow is the conservative fallback for unknown models.
const defaultContextWindow = 32768

// modelWindows maps well-known model names to their context window sizes.
// Lookup falls back to prefix matching for versioned names
// (e.g. "gpt-4o-2024-08-06").
var modelWindows = map[string]int{
	// Anthropic
	"claude-sonnet-4":  200000,
	"claude-opus-4":    200000,
	"claude-haiku-4-5": 200000,
	// OpenAI
	"gpt-4o":      128000,
	"gpt-4o-mini": 128000,
	"gpt-4.1":     1047576,
	"o3":          200000,
	"o4-mini":     200000,
	// DeepSeek
	"deepseek-chat":     65536,
	"deepseek-reasoner": 65536,
	// Google
	"gemini-2.5-pro":   1048576,
	"gemini-2.5-flash": 1048576,
}

// ContextWindow resolves a model name to its context window size.
func ContextWindow(model string) int {
	if w, ok := modelWindows[model]; ok {
		return w
	}
	// Prefix match for versioned model names; prefer the longest prefix so
	// "gpt-4o-mini-2024" resolves to gpt-4o-mini rather than gpt-4o.
	best, bestLen := 0, 0
	for name, w := range modelWindows {
		if strings.HasPrefix(model, name) && len(name) > bestLen {
			best, bestLen = w, len(name)
		}
	}
	if bestLen > 0 {
		return best
	}
	return defaultContextWindow
}
