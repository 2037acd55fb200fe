package provider

import (
	"encoding/json"
	"testing"
)

func TestMessageText(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []Content{
			{Type: ContentTypeText, Text: "first "},
			{Type: ContentTypeToolUse, ToolName: "grep", ToolUseID: "t1"},
			{Type: ContentTypeText, Text: "second"},
		},
	}
	if got := msg.Text(); got != "first second" {
		t.Errorf("Text() = %q", got)
	}
	if !msg.HasToolUse() {
		t.Error("HasToolUse() = false")
	}
	if msg.HasToolResult() {
		t.Error("HasToolResult() = true")
	}
}

func TestCloneMessagesIndependence(t *testing.T) {
	msgs := []Message{
		{
			Role: RoleAssistant,
			Content: []Content{
				{Type: ContentTypeToolUse, ToolName: "bash", ToolUseID: "t1", ToolInput: json.RawMessage(`{"cmd":"ls"}`)},
			},
		},
		TextMessage(RoleUser, "hello"),
	}

	clone := CloneMessages(msgs)
	clone[0].Content[0].ToolInput[2] = 'X'
	clone[1].Content[0].Text = "mutated"

	if string(msgs[0].Content[0].ToolInput) != `{"cmd":"ls"}` {
		t.Error("clone shares tool input bytes with the source")
	}
	if msgs[1].Content[0].Text != "hello" {
		t.Error("clone shares content with the source")
	}
	if CloneMessages(nil) != nil {
		t.Error("CloneMessages(nil) != nil")
	}
}

func TestCloneToolsIndependence(t *testing.T) {
	tools := []ToolSchema{
		{Name: "grep", Description: "search", Parameters: map[string]any{"pattern": "string"}},
	}
	clone := CloneTools(tools)
	clone[0].Parameters["pattern"] = "mutated"

	if tools[0].Parameters["pattern"] != "string" {
		t.Error("clone shares the parameter map with the source")
	}
}
