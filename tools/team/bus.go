// Package team implements the persistent team roster, the JSONL inbox bus,
// the lead-side team tools, and the teammate worker runtime.
package team

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	anuris "github.com/anuris-ai/anuris"
)

// validMessageTypes are the only types the bus accepts.
var validMessageTypes = map[string]bool{
	"message":                true,
	"broadcast":              true,
	"shutdown_request":       true,
	"shutdown_response":      true,
	"plan_approval_request":  true,
	"plan_approval_response": true,
}

// Message is one inbox record, one JSON object per line on the wire.
type Message struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
	Approve   *bool  `json:"approve,omitempty"`
	Plan      string `json:"plan,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
}

// Bus is the file-backed inbox bus. Each named entity (lead included) has
// one JSONL file; sends append under the mutex, reads drain the file. The
// bus assumes a single process hosts all teammates.
type Bus struct {
	mu  sync.Mutex
	dir string
}

// NewBus creates a bus storing inboxes under dir.
func NewBus(dir string) (*Bus, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve inbox dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}
	return &Bus{dir: abs}, nil
}

func (b *Bus) inboxPath(name string) string {
	return filepath.Join(b.dir, name+".jsonl")
}

// Send appends one message to the target inbox. The returned string is the
// confirmation handed back to the model.
func (b *Bus) Send(msg Message, to string) string {
	if !validMessageTypes[msg.Type] {
		return fmt.Sprintf("Error: Invalid message type '%s'", msg.Type)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = anuris.NowUnix()
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return "Error: " + err.Error()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := os.OpenFile(b.inboxPath(to), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "Error: " + err.Error()
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Sent %s to %s", msg.Type, to)
}

// Read drains an inbox: parses existing lines in append order, then replaces
// the file with empty. Malformed lines are skipped.
func (b *Bus) Read(name string) []Message {
	b.mu.Lock()
	data, err := os.ReadFile(b.inboxPath(name))
	if err == nil {
		err = os.WriteFile(b.inboxPath(name), nil, 0o644)
	}
	b.mu.Unlock()
	if err != nil && len(data) == 0 {
		return nil
	}

	var messages []Message
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}
