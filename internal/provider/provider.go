// Package provider defines the message and tool-schema data model shared by
// the budgeting engine, plus the capability interfaces the engine needs from
// external LLM vendors (exact token counting, summary generation). Each
// vendor adapter (anthropic.go, openai.go) implements one capability; the
// engine never talks to a vendor API directly.
package provider

import (
	"context"
	"encoding/json"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// Content is a single content block within a message.
type Content struct {
	Type       ContentType
	Text       string
	ToolUseID  string          // tool_use / tool_result
	ToolName   string          // tool_use
	ToolInput  json.RawMessage // tool_use
	ToolResult string          // tool_result
	IsError    bool            // tool_result
}

// Message is a single message in the conversation history.
type Message struct {
	Role    Role
	Content []Content
}

// TextMessage builds a single-block text message.
func TextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []Content{{Type: ContentTypeText, Text: text}},
	}
}

// Text returns the concatenated text blocks of the message.
func (m Message) Text() string {
	var out string
	for _, c := range m.Content {
		if c.Type == ContentTypeText {
			out += c.Text
		}
	}
	return out
}

// HasToolUse reports whether the message contains a tool_use block.
func (m Message) HasToolUse() bool {
	for _, c := range m.Content {
		if c.Type == ContentTypeToolUse {
			return true
		}
	}
	return false
}

// HasToolResult reports whether the message contains a tool_result block.
func (m Message) HasToolResult() bool {
	for _, c := range m.Content {
		if c.Type == ContentTypeToolResult {
			return true
		}
	}
	return false
}

// CloneMessages deep-copies a message slice so callers can hand out an
// immutable view. Go struct copy is shallow; string fields are immutable but
// the Content slices and ToolInput byte slices are not.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		out[i] = Message{
			Role:    msg.Role,
			Content: make([]Content, len(msg.Content)),
		}
		copy(out[i].Content, msg.Content)
		for j, c := range msg.Content {
			if len(c.ToolInput) > 0 {
				out[i].Content[j].ToolInput = append(json.RawMessage{}, c.ToolInput...)
			}
		}
	}
	return out
}

// ── Tool schema ──────────────────────────────────────────────────────────────

// ToolSchema describes a tool exposed to the LLM (JSON Schema format).
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema properties
}

// CloneTools copies a tool-schema slice. Parameter maps are copied one level
// deep, which is enough to keep callbacks from renaming or re-typing tools.
func CloneTools(tools []ToolSchema) []ToolSchema {
	if tools == nil {
		return nil
	}
	out := make([]ToolSchema, len(tools))
	for i, t := range tools {
		out[i] = ToolSchema{Name: t.Name, Description: t.Description}
		if t.Parameters != nil {
			out[i].Parameters = make(map[string]any, len(t.Parameters))
			for k, v := range t.Parameters {
				out[i].Parameters[k] = v
			}
		}
	}
	return out
}

// ── Capability interfaces ────────────────────────────────────────────────────

// TokenCounter returns an exact token count for a piece of text.
// Implementations may call a vendor API; callers bound how long that takes
// via ctx. The engine treats a counter as optional: when absent or failing,
// estimation falls back to the heuristic.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// Summarizer condenses a block of conversation into a single text summary.
// previousSummary may be empty (first compaction); iterative summarizers fold
// the old summary into the new one.
type Summarizer interface {
	Summarize(ctx context.Context, previousSummary string, messages []Message) (string, error)
}
