package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/apexion-ai/ctxbudget/internal/config"
	"github.com/apexion-ai/ctxbudget/internal/monitor"
	"github.com/apexion-ai/ctxbudget/internal/optimizer"
	"github.com/apexion-ai/ctxbudget/internal/provider"
)

// ShareMode controls how much context crosses an agent handoff.
type ShareMode string

const (
	ShareNone    ShareMode = "none"
	ShareSummary ShareMode = "summary"
	ShareFull    ShareMode = "full"
)

// ContextPolicy governs a handoff to one agent.
type ContextPolicy struct {
	// Share is the master switch. When false and no explicit ShareMode is
	// set, the receiving agent starts from nothing.
	Share bool `yaml:"share" json:"share"`

	ShareMode ShareMode `yaml:"share_mode" json:"share_mode"`

	// ToolsShare hands the sender's tool schemas to the receiver.
	ToolsShare bool `yaml:"tools_share" json:"tools_share"`

	// MaxTokens caps the handed-off context; 0 means uncapped. Oldest
	// messages are dropped first, but at least one always survives.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// PreserveRecentTurns bounds full-mode sharing to the newest N turns;
	// 0 shares the whole conversation.
	PreserveRecentTurns int `yaml:"preserve_recent_turns" json:"preserve_recent_turns"`
}

// handoffSummary is the payload embedded in a summary-mode handoff message.
type handoffSummary struct {
	Summary      string `json:"_handoff_summary"`
	FromAgent    string `json:"from_agent"`
	MessageCount int    `json:"message_count"`
}

// MultiManager coordinates per-agent context managers and the context policy
// applied when one agent hands work to another. Safe for concurrent use.
type MultiManager struct {
	mu       sync.Mutex
	cfg      config.Config
	opts     []Option
	managers map[string]*Manager
	policies map[string]ContextPolicy
	mon      *monitor.Monitor
}

// NewMulti creates a multi-agent coordinator. Every agent manager is built
// lazily from cfg plus opts on first access.
func NewMulti(cfg config.Config, opts ...Option) *MultiManager {
	return &MultiManager{
		cfg:      cfg,
		opts:     opts,
		managers: make(map[string]*Manager),
		policies: make(map[string]ContextPolicy),
	}
}

// WithMultiMonitor attaches a shared observability sink; each agent's records
// carry the agent name.
func (mm *MultiManager) WithMultiMonitor(mon *monitor.Monitor) *MultiManager {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.mon = mon
	return mm
}

// AgentManager returns the manager for an agent, creating it on first use.
// Repeated calls with the same name return the same instance.
func (mm *MultiManager) AgentManager(name string) (*Manager, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if m, ok := mm.managers[name]; ok {
		return m, nil
	}
	opts := append([]Option{withAgent(name)}, mm.opts...)
	if mm.mon != nil {
		opts = append(opts, WithMonitor(mm.mon))
	}
	m, err := New(mm.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", name, err)
	}
	mm.managers[name] = m
	return m, nil
}

// Agents returns the names of all instantiated agent managers.
func (mm *MultiManager) Agents() []string {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	names := make([]string, 0, len(mm.managers))
	for name := range mm.managers {
		names = append(names, name)
	}
	return names
}

// SetPolicy registers the context policy applied on handoffs TO an agent.
func (mm *MultiManager) SetPolicy(toAgent string, policy ContextPolicy) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.policies[toAgent] = policy
}

// Policy returns the registered policy for an agent and whether one exists.
func (mm *MultiManager) Policy(toAgent string) (ContextPolicy, bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	p, ok := mm.policies[toAgent]
	return p, ok
}

// PrepareHandoff builds the context the receiving agent starts from.
// Policy resolution: an explicit policy argument wins, else the receiving
// agent's registered policy, else no sharing at all.
func (mm *MultiManager) PrepareHandoff(ctx context.Context, fromAgent, toAgent string, msgs []provider.Message, policy *ContextPolicy) ([]provider.Message, error) {
	resolved := ContextPolicy{ShareMode: ShareNone}
	if policy != nil {
		resolved = *policy
	} else if p, ok := mm.Policy(toAgent); ok {
		resolved = p
	}
	// Share is the master switch: without it, any configured mode is inert.
	mode := ShareNone
	if resolved.Share {
		mode = resolved.ShareMode
		if mode == "" {
			mode = ShareFull
		}
	}

	var out []provider.Message
	switch mode {
	case ShareFull:
		if resolved.PreserveRecentTurns > 0 {
			out = provider.CloneMessages(optimizer.RecentTurns(msgs, resolved.PreserveRecentTurns))
		} else {
			out = provider.CloneMessages(msgs)
		}
	case ShareSummary:
		summary, err := optimizer.Condenser{}.Summarize(ctx, "", msgs)
		if err != nil {
			return nil, fmt.Errorf("handoff %s -> %s: %w", fromAgent, toAgent, err)
		}
		payload, err := json.Marshal(handoffSummary{
			Summary:      summary,
			FromAgent:    fromAgent,
			MessageCount: len(msgs),
		})
		if err != nil {
			return nil, fmt.Errorf("handoff %s -> %s: %w", fromAgent, toAgent, err)
		}
		out = []provider.Message{provider.TextMessage(provider.RoleSystem, string(payload))}
	default:
		out = []provider.Message{}
	}

	if resolved.MaxTokens > 0 {
		out = mm.trimToTokens(fromAgent, out, resolved.MaxTokens)
	}

	resolved.ShareMode = mode
	mm.recordHandoff(fromAgent, toAgent, resolved, msgs, out)
	return out, nil
}

// ShareTools returns the tool schemas the receiving agent inherits under its
// policy: a copy when sharing is on, nil otherwise.
func (mm *MultiManager) ShareTools(toAgent string, tools []provider.ToolSchema, policy *ContextPolicy) []provider.ToolSchema {
	resolved := ContextPolicy{}
	if policy != nil {
		resolved = *policy
	} else if p, ok := mm.Policy(toAgent); ok {
		resolved = p
	}
	if !resolved.ToolsShare {
		return nil
	}
	return provider.CloneTools(tools)
}

// CombinedStats returns per-agent stats for every instantiated manager.
func (mm *MultiManager) CombinedStats() map[string]Stats {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	out := make(map[string]Stats, len(mm.managers))
	for name, m := range mm.managers {
		out[name] = m.Stats()
	}
	return out
}

// trimToTokens drops the oldest messages until the estimate fits, always
// keeping at least one message.
func (mm *MultiManager) trimToTokens(fromAgent string, msgs []provider.Message, maxTokens int) []provider.Message {
	m, err := mm.AgentManager(fromAgent)
	if err != nil {
		return msgs
	}
	for len(msgs) > 1 && m.est.EstimateMessages(msgs) > maxTokens {
		msgs = msgs[1:]
	}
	return msgs
}

func (mm *MultiManager) recordHandoff(fromAgent, toAgent string, policy ContextPolicy, in, out []provider.Message) {
	from, err := mm.AgentManager(fromAgent)
	if err != nil {
		return
	}
	before := from.est.EstimateMessages(in)
	after := from.est.EstimateMessages(out)
	from.appendEvent(OptimizationEvent{
		Timestamp:    time.Now(),
		Type:         EventHandoff,
		TokensBefore: before,
		TokensAfter:  after,
		TokensSaved:  before - after,
		Details:      fmt.Sprintf("to %s, share %s", toAgent, policy.ShareMode),
	})
	from.record(monitor.Record{
		Type:         string(EventHandoff),
		TokensBefore: before,
		TokensAfter:  after,
		Details:      fmt.Sprintf("%s -> %s (%s)", fromAgent, toAgent, policy.ShareMode),
	})
}
