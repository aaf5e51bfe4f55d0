// Package background runs shell commands asynchronously and queues
// completion notifications for the agent loop to drain.
package background

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	anuris "github.com/anuris-ai/anuris"
	"github.com/anuris-ai/anuris/internal/workspace"
	"github.com/anuris-ai/anuris/tools/shell"
)

// DefaultTimeout is the wall-clock limit for background commands.
const DefaultTimeout = 300 * time.Second

type task struct {
	status  string
	command string
	result  string
	seq     int
}

// Manager owns the background task table and notification queue. One worker
// goroutine per run call; all state behind a single mutex.
type Manager struct {
	root *workspace.Root

	mu            sync.Mutex
	tasks         map[string]*task
	notifications []anuris.BackgroundNotification
	nextSeq       int
}

// New creates a manager running commands under root.
func New(root *workspace.Root) *Manager {
	return &Manager{
		root:  root,
		tasks: make(map[string]*task),
	}
}

// Run launches command asynchronously and returns a start confirmation with
// the task id. Dangerous commands are rejected up front.
func (m *Manager) Run(command string, timeout time.Duration) string {
	if err := workspace.CheckCommand(command); err != nil {
		return "Error: " + err.Error()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	id := anuris.ShortID()
	m.mu.Lock()
	m.tasks[id] = &task{status: "running", command: command, seq: m.nextSeq}
	m.nextSeq++
	m.mu.Unlock()

	go m.execute(id, command, timeout)
	return fmt.Sprintf("Background task %s started: %.80s", id, command)
}

func (m *Manager) execute(id, command string, timeout time.Duration) {
	// Background tasks outlive the agent round that launched them, so they
	// run off context.Background rather than the round context.
	output, err := shell.Run(context.Background(), m.root.Path(), command, timeout)
	status := "completed"
	if err != nil {
		output = "Error: " + err.Error()
		if strings.HasPrefix(err.Error(), "Timeout (") {
			status = "timeout"
		} else {
			status = "error"
		}
	}
	if output == "" {
		output = "(no output)"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return
	}
	t.status = status
	t.result = output
	m.notifications = append(m.notifications, anuris.BackgroundNotification{
		TaskID:  id,
		Status:  status,
		Result:  truncate(output, 500),
		Command: truncate(command, 80),
	})
}

// Check returns a one-task snapshot or, with an empty id, the full list.
func (m *Manager) Check(taskID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if taskID != "" {
		t, ok := m.tasks[taskID]
		if !ok {
			return fmt.Sprintf("Error: Unknown task %s", taskID)
		}
		result := t.result
		if result == "" {
			result = "(running)"
		}
		return fmt.Sprintf("[%s] %.60s\n%s", t.status, t.command, result)
	}

	if len(m.tasks) == 0 {
		return "No background tasks."
	}
	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.tasks[ids[i]].seq < m.tasks[ids[j]].seq })
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		t := m.tasks[id]
		lines = append(lines, fmt.Sprintf("%s: [%s] %.60s", id, t.status, t.command))
	}
	return strings.Join(lines, "\n")
}

// Drain atomically removes and returns all pending notifications.
func (m *Manager) Drain() []anuris.BackgroundNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	notifications := m.notifications
	m.notifications = nil
	return notifications
}

// --- tool surface ---

func (m *Manager) Definitions() []anuris.ToolDefinition {
	return []anuris.ToolDefinition{
		{
			Name:        "background_run",
			Description: "Run a shell command asynchronously in the workspace. Returns a task id; completion arrives as a background result.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","description":"Shell command to run"},"timeout":{"type":"integer","description":"Timeout in seconds (default 300)"}},"required":["command"]}`),
		},
		{
			Name:        "check_background",
			Description: "Check background task status. With task_id, shows that task's status and output; without, lists all tasks.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"string"}}}`),
		},
	}
}

func (m *Manager) Execute(ctx context.Context, name string, args json.RawMessage) (anuris.ToolResult, error) {
	var params struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
		TaskID  string `json:"task_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return anuris.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	switch name {
	case "background_run":
		out := m.Run(params.Command, time.Duration(params.Timeout)*time.Second)
		if rest, ok := strings.CutPrefix(out, "Error: "); ok {
			return anuris.ToolResult{Error: rest}, nil
		}
		return anuris.ToolResult{Content: out}, nil
	case "check_background":
		out := m.Check(params.TaskID)
		if rest, ok := strings.CutPrefix(out, "Error: "); ok {
			return anuris.ToolResult{Error: rest}, nil
		}
		return anuris.ToolResult{Content: out}, nil
	default:
		return anuris.ToolResult{Error: "unknown background tool: " + name}, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
