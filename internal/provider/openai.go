package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAISummarizer implements Summarizer by calling an OpenAI-compatible
// chat-completions API (OpenAI, DeepSeek, Kimi, Qwen, anything that speaks
// the same protocol via a custom base URL).
type OpenAISummarizer struct {
	client openai.Client
	model  string
}

// NewOpenAISummarizer creates a summarizer. baseURL may be empty for the
// OpenAI default. A cheap model is usually the right choice here.
func NewOpenAISummarizer(apiKey, baseURL, model string) *OpenAISummarizer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAISummarizer{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

const summarizeInstruction = `Summarize the conversation so far for continuity. Include:
- The user's original task and intent
- Key decisions made and rationale
- Current progress and remaining steps
Be concise but thorough.`

// Summarize condenses messages (and any previous summary) into one summary.
func (s *OpenAISummarizer) Summarize(ctx context.Context, previousSummary string, messages []Message) (string, error) {
	var prompt strings.Builder
	if previousSummary != "" {
		fmt.Fprintf(&prompt, "Previous conversation summary:\n%s\n\n", previousSummary)
	}
	prompt.WriteString("Conversation:\n")
	for _, msg := range messages {
		if t := msg.Text(); t != "" {
			fmt.Fprintf(&prompt, "[%s] %s\n", msg.Role, t)
		}
	}
	prompt.WriteString("\n" + summarizeInstruction)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a conversation summarizer. Produce a concise, structured summary."),
			openai.UserMessage(prompt.String()),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize LLM call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarizer returned no choices")
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("summarizer returned empty summary")
	}
	return summary, nil
}
