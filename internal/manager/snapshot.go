package manager

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/zeebo/blake3"

	"github.com/apexion-ai/ctxbudget/internal/monitor"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// digestLen is the number of hex characters kept from the full digest.
const digestLen = 16

// SnapshotHook is the immutable record handed to snapshot callbacks right
// before messages cross the LLM boundary. Messages and Tools are deep copies;
// callbacks may inspect them freely without affecting the live conversation.
type SnapshotHook struct {
	Timestamp   time.Time
	Messages    []provider.Message
	Tools       []provider.ToolSchema
	MessageHash string
	ToolsHash   string
	TotalTokens int
}

// canonical wire shapes for hashing. Field order is fixed so the same logical
// conversation always serializes to the same bytes.
type hashContent struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolUseID  string          `json:"tool_use_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolResult string          `json:"tool_result,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

type hashMessage struct {
	Role    string        `json:"role"`
	Content []hashContent `json:"content"`
}

type hashTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// HashMessages returns a 16-hex-character digest of the conversation.
// Deterministic: equal message content yields equal digests across processes.
func HashMessages(msgs []provider.Message) string {
	canon := make([]hashMessage, len(msgs))
	for i, msg := range msgs {
		hm := hashMessage{Role: string(msg.Role), Content: make([]hashContent, len(msg.Content))}
		for j, c := range msg.Content {
			hm.Content[j] = hashContent{
				Type:       string(c.Type),
				Text:       c.Text,
				ToolUseID:  c.ToolUseID,
				ToolName:   c.ToolName,
				ToolInput:  c.ToolInput,
				ToolResult: c.ToolResult,
				IsError:    c.IsError,
			}
		}
		canon[i] = hm
	}
	return digest(canon)
}

// HashTools returns a 16-hex-character digest of the tool schemas.
func HashTools(tools []provider.ToolSchema) string {
	canon := make([]hashTool, len(tools))
	for i, t := range tools {
		canon[i] = hashTool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}
	return digest(canon)
}

func digest(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])[:digestLen]
}

// RegisterSnapshotCallback adds a callback invoked on every LLM-boundary
// capture, in registration order. Callbacks must not block for long; the
// capture is synchronous.
func (m *Manager) RegisterSnapshotCallback(fn func(SnapshotHook)) {
	m.callbacks = append(m.callbacks, fn)
}

// CaptureLLMBoundary snapshots the exact messages and tools about to be sent
// to the model, hashes them, invokes the registered callbacks, and retains
// the snapshot for later inspection.
func (m *Manager) CaptureLLMBoundary(msgs []provider.Message, tools []provider.ToolSchema) SnapshotHook {
	snap := SnapshotHook{
		Timestamp:   time.Now(),
		Messages:    provider.CloneMessages(msgs),
		Tools:       provider.CloneTools(tools),
		MessageHash: HashMessages(msgs),
		ToolsHash:   HashTools(tools),
		TotalTokens: m.est.EstimateMessages(msgs) + m.est.EstimateTools(tools),
	}
	m.lastSnapshot = &snap

	// Each callback gets its own copy of the payload so a misbehaving
	// callback cannot poison what later callbacks (or LastSnapshot) observe.
	for _, fn := range m.callbacks {
		view := snap
		view.Messages = provider.CloneMessages(snap.Messages)
		view.Tools = provider.CloneTools(snap.Tools)
		fn(view)
	}

	m.appendEvent(OptimizationEvent{
		Timestamp:    snap.Timestamp,
		Type:         EventSnapshot,
		TokensBefore: snap.TotalTokens,
		TokensAfter:  snap.TotalTokens,
		Details:      "messages " + snap.MessageHash + " tools " + snap.ToolsHash,
	})
	m.record(monitor.Record{
		Type:        string(EventSnapshot),
		MessageHash: snap.MessageHash,
		ToolsHash:   snap.ToolsHash,
		TokensAfter: snap.TotalTokens,
	})
	return snap
}

// LastSnapshot returns the most recent LLM-boundary snapshot, or nil when no
// capture has happened since construction or Reset.
func (m *Manager) LastSnapshot() *SnapshotHook { return m.lastSnapshot }
