// Package monitor writes the engine's optimization and snapshot events to a
// structured JSONL (or plain text) stream for external dashboards. It is a
// passive sink: it never mutates the managers it observes.
package monitor

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is a single monitor entry.
type Record struct {
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"ts"`
	SessionID    string    `json:"session_id"`
	Agent        string    `json:"agent,omitempty"`
	Strategy     string    `json:"strategy,omitempty"`
	TokensBefore int       `json:"tokens_before,omitempty"`
	TokensAfter  int       `json:"tokens_after,omitempty"`
	MessageHash  string    `json:"message_hash,omitempty"`
	ToolsHash    string    `json:"tools_hash,omitempty"`
	Details      string    `json:"details,omitempty"`
}

// Monitor appends records to a session-scoped file. Safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	file      *os.File
	enc       *json.Encoder
	format    string // "jsonl" | "text"
	interval  int    // record every Nth event
	redact    bool
	seen      int
	sessionID string
	path      string
}

// Options configures a Monitor.
type Options struct {
	Path     string // empty = ~/.local/share/ctxbudget/monitor/{session}.jsonl
	Format   string // "jsonl" (default) | "text"
	Interval int    // <= 0 means every event
	Redact   bool   // drop free-form details from records
}

// New opens a monitor stream.
func New(opts Options) (*Monitor, error) {
	sessionID := newSessionID()

	path := opts.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve monitor directory: %w", err)
		}
		path = filepath.Join(home, ".local", "share", "ctxbudget", "monitor", sessionID+".jsonl")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create monitor directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open monitor file %s: %w", path, err)
	}

	format := opts.Format
	if format != "text" {
		format = "jsonl"
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 1
	}

	return &Monitor{
		file:      f,
		enc:       json.NewEncoder(f),
		format:    format,
		interval:  interval,
		redact:    opts.Redact,
		sessionID: sessionID,
		path:      path,
	}, nil
}

// Record writes one entry, honoring the sampling interval and redaction.
// Write errors are swallowed: observability must never break the engine.
func (m *Monitor) Record(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seen++
	if m.seen%m.interval != 0 {
		return
	}

	rec.SessionID = m.sessionID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if m.redact {
		rec.Details = ""
	}

	switch m.format {
	case "text":
		fmt.Fprintf(m.file, "%s %s agent=%s strategy=%s before=%d after=%d hash=%s\n",
			rec.Timestamp.Format(time.RFC3339), rec.Type, rec.Agent,
			rec.Strategy, rec.TokensBefore, rec.TokensAfter, rec.MessageHash)
	default:
		_ = m.enc.Encode(rec)
	}
}

// Path returns the monitor output file path.
func (m *Monitor) Path() string { return m.path }

// Close flushes and closes the underlying file.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}

func newSessionID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
