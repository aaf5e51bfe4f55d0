package anuris

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// TodoStatus is the lifecycle state of a single todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// TodoItem is one entry on the in-memory todo board.
type TodoItem struct {
	Content    string     `json:"content"`
	Status     TodoStatus `json:"status"`
	ActiveForm string     `json:"activeForm"`
}

// TodoManager holds the per-process todo board. Every update replaces the
// whole list. Invariants: at most 20 items, at most one in_progress item,
// and an in_progress item carries a non-empty activeForm.
type TodoManager struct {
	mu    sync.Mutex
	items []TodoItem
}

// NewTodoManager creates an empty todo board.
func NewTodoManager() *TodoManager {
	return &TodoManager{}
}

// Update validates items and replaces the board, returning the rendered text.
func (m *TodoManager) Update(items []TodoItem) (string, error) {
	if len(items) > 20 {
		return "", fmt.Errorf("Max 20 todos")
	}

	validated := make([]TodoItem, 0, len(items))
	inProgress := 0
	for i, item := range items {
		content := strings.TrimSpace(item.Content)
		status := TodoStatus(strings.ToLower(string(item.Status)))
		if status == "" {
			status = TodoPending
		}
		activeForm := strings.TrimSpace(item.ActiveForm)
		if activeForm == "" {
			activeForm = content
		}
		if content == "" {
			return "", fmt.Errorf("Item %d: content required", i)
		}
		switch status {
		case TodoPending, TodoInProgress, TodoCompleted:
		default:
			return "", fmt.Errorf("Item %d: invalid status '%s'", i, status)
		}
		if status == TodoInProgress {
			inProgress++
			if activeForm == "" {
				return "", fmt.Errorf("Item %d: activeForm required for in_progress", i)
			}
		}
		validated = append(validated, TodoItem{Content: content, Status: status, ActiveForm: activeForm})
	}
	if inProgress > 1 {
		return "", fmt.Errorf("Only one in_progress allowed")
	}

	m.mu.Lock()
	m.items = validated
	m.mu.Unlock()
	return m.Render(), nil
}

// Items returns a snapshot of the current board.
func (m *TodoManager) Items() []TodoItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TodoItem, len(m.items))
	copy(out, m.items)
	return out
}

// Render formats the board for the model: one marker line per item plus a
// trailing completion count.
func (m *TodoManager) Render() string {
	items := m.Items()
	if len(items) == 0 {
		return "No todos."
	}

	var b strings.Builder
	done := 0
	for _, item := range items {
		marker := "[?]"
		switch item.Status {
		case TodoPending:
			marker = "[ ]"
		case TodoInProgress:
			marker = "[>]"
		case TodoCompleted:
			marker = "[x]"
			done++
		}
		b.WriteString(marker)
		b.WriteString(" ")
		b.WriteString(item.Content)
		if item.Status == TodoInProgress {
			b.WriteString(" <- ")
			b.WriteString(item.ActiveForm)
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\n(%d/%d completed)", done, len(items)))
	return b.String()
}

// TodoTool exposes the board to the model as the TodoWrite tool.
type TodoTool struct {
	manager *TodoManager
}

// NewTodoTool wraps a TodoManager as an executable tool.
func NewTodoTool(m *TodoManager) *TodoTool {
	return &TodoTool{manager: m}
}

func (t *TodoTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name:        "TodoWrite",
		Description: "Replace the entire todo list. Use to plan and track multi-step work. Mark at most one item in_progress and keep activeForm as the present-tense description of that item.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"todos": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"content": {"type": "string"},
							"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]},
							"activeForm": {"type": "string"}
						},
						"required": ["content", "status"]
					}
				}
			},
			"required": ["todos"]
		}`),
	}}
}

func (t *TodoTool) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	if name != "TodoWrite" {
		return ToolResult{}, fmt.Errorf("Unknown tool '%s'", name)
	}
	var in struct {
		Todos []TodoItem `json:"todos"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return ToolResult{Error: "invalid arguments: " + err.Error()}, nil
	}
	rendered, err := t.manager.Update(in.Todos)
	if err != nil {
		return ToolResult{Error: err.Error()}, nil
	}
	return ToolResult{Content: rendered}, nil
}
