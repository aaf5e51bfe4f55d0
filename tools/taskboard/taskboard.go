// Package taskboard implements the file-backed persistent task board and its
// task_* tools. Each task lives in its own task_<id>.json file so boards
// survive restarts and are shared between the lead and teammate workers.
package taskboard

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	anuris "github.com/anuris-ai/anuris"
)

// Task is the persisted task record.
type Task struct {
	ID          int    `json:"id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Owner       string `json:"owner"`
	BlockedBy   []int  `json:"blockedBy"`
	Blocks      []int  `json:"blocks"`
}

var validStatuses = map[string]bool{
	"pending":     true,
	"in_progress": true,
	"completed":   true,
}

// Board is the file-backed task board. All read-modify-write sequences hold
// the mutex; files themselves are the source of truth.
type Board struct {
	mu  sync.Mutex
	dir string
}

// New creates a board storing tasks under dir, creating it if needed.
func New(dir string) (*Board, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve tasks dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create tasks dir: %w", err)
	}
	return &Board{dir: abs}, nil
}

// Create adds a task with the next free id and returns its JSON record.
func (b *Board) Create(subject, description string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	task := Task{
		ID:          b.nextID(),
		Subject:     subject,
		Description: strings.TrimSpace(description),
		Status:      "pending",
		Owner:       "",
		BlockedBy:   []int{},
		Blocks:      []int{},
	}
	if err := b.save(task); err != nil {
		return "", err
	}
	return renderJSON(task), nil
}

// Get returns the JSON record for a task id.
func (b *Board) Get(id int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, err := b.load(id)
	if err != nil {
		return "", err
	}
	return renderJSON(task), nil
}

// UpdateInput carries the optional fields of a task_update call.
type UpdateInput struct {
	Status       string
	Owner        *string
	AddBlockedBy []int
	AddBlocks    []int
}

// Update applies the given changes to a task. Status "deleted" removes the
// file; status "completed" clears the id from every other task's blockedBy;
// AddBlocks mirrors into each target's blockedBy.
func (b *Board) Update(id int, in UpdateInput) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	task, err := b.load(id)
	if err != nil {
		return "", err
	}

	if in.Status != "" {
		normalized := strings.ToLower(strings.TrimSpace(in.Status))
		if normalized == "deleted" {
			if err := os.Remove(b.taskPath(id)); err != nil && !os.IsNotExist(err) {
				return "", err
			}
			return fmt.Sprintf("Task %d deleted", id), nil
		}
		if !validStatuses[normalized] {
			return "", fmt.Errorf("Invalid status: %s", in.Status)
		}
		task.Status = normalized
		if normalized == "completed" {
			if err := b.clearDependency(id); err != nil {
				return "", err
			}
		}
	}

	if in.Owner != nil {
		task.Owner = strings.TrimSpace(*in.Owner)
	}

	if len(in.AddBlockedBy) > 0 {
		task.BlockedBy = mergeIDs(task.BlockedBy, in.AddBlockedBy)
	}

	if len(in.AddBlocks) > 0 {
		task.Blocks = mergeIDs(task.Blocks, in.AddBlocks)
		for _, blockedID := range in.AddBlocks {
			if err := b.addBlockedBy(blockedID, id); err != nil {
				return "", err
			}
		}
	}

	if err := b.save(task); err != nil {
		return "", err
	}
	return renderJSON(task), nil
}

// ListAll renders one line per task sorted by id.
func (b *Board) ListAll() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	tasks := b.loadAll()
	if len(tasks) == 0 {
		return "No tasks."
	}

	lines := make([]string, 0, len(tasks))
	for _, task := range tasks {
		marker := "[?]"
		switch task.Status {
		case "pending":
			marker = "[ ]"
		case "in_progress":
			marker = "[>]"
		case "completed":
			marker = "[x]"
		}
		owner := ""
		if task.Owner != "" {
			owner = " @" + task.Owner
		}
		blocked := ""
		if len(task.BlockedBy) > 0 {
			blocked = " (blocked by: " + renderIDs(task.BlockedBy) + ")"
		}
		lines = append(lines, fmt.Sprintf("%s #%d: %s%s%s", marker, task.ID, task.Subject, owner, blocked))
	}
	return strings.Join(lines, "\n")
}

// Claim assigns owner to a task and moves it to in_progress.
func (b *Board) Claim(id int, owner string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	task, err := b.load(id)
	if err != nil {
		return "", err
	}
	task.Owner = strings.TrimSpace(owner)
	task.Status = "in_progress"
	if err := b.save(task); err != nil {
		return "", err
	}
	return renderJSON(task), nil
}

// ClaimNextUnblocked picks the lowest-id pending task with no blockers,
// claims it for owner, and returns it. Used by the teammate idle loop.
func (b *Board) ClaimNextUnblocked(owner string) (anuris.ClaimedTask, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, task := range b.loadAll() {
		if task.Status != "pending" || len(task.BlockedBy) > 0 {
			continue
		}
		task.Owner = strings.TrimSpace(owner)
		task.Status = "in_progress"
		if err := b.save(task); err != nil {
			return anuris.ClaimedTask{}, false
		}
		return anuris.ClaimedTask{
			ID:          task.ID,
			Subject:     task.Subject,
			Description: task.Description,
		}, true
	}
	return anuris.ClaimedTask{}, false
}

// --- tool surface ---

func (b *Board) Definitions() []anuris.ToolDefinition {
	return []anuris.ToolDefinition{
		{
			Name:        "task_create",
			Description: "Create a persistent task on the shared board.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"subject":{"type":"string","description":"Short task title"},"description":{"type":"string","description":"Longer task description"}},"required":["subject"]}`),
		},
		{
			Name:        "task_get",
			Description: "Get one task by id as JSON.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"integer"}},"required":["task_id"]}`),
		},
		{
			Name:        "task_update",
			Description: "Update a task: status (pending/in_progress/completed/deleted), owner, add_blocked_by, add_blocks.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"integer"},"status":{"type":"string"},"owner":{"type":"string"},"add_blocked_by":{"type":"array","items":{"type":"integer"}},"add_blocks":{"type":"array","items":{"type":"integer"}}},"required":["task_id"]}`),
		},
		{
			Name:        "task_list",
			Description: "List all tasks on the board.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "claim_task",
			Description: "Claim a task: set owner and move it to in_progress.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"integer"},"owner":{"type":"string","description":"Claiming owner (default lead)"}},"required":["task_id"]}`),
		},
	}
}

func (b *Board) Execute(ctx context.Context, name string, args json.RawMessage) (anuris.ToolResult, error) {
	var params struct {
		TaskID       int     `json:"task_id"`
		Subject      string  `json:"subject"`
		Description  string  `json:"description"`
		Status       string  `json:"status"`
		Owner        *string `json:"owner"`
		AddBlockedBy []int   `json:"add_blocked_by"`
		AddBlocks    []int   `json:"add_blocks"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return anuris.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	var out string
	var err error
	switch name {
	case "task_create":
		out, err = b.Create(params.Subject, params.Description)
	case "task_get":
		out, err = b.Get(params.TaskID)
	case "task_update":
		out, err = b.Update(params.TaskID, UpdateInput{
			Status:       params.Status,
			Owner:        params.Owner,
			AddBlockedBy: params.AddBlockedBy,
			AddBlocks:    params.AddBlocks,
		})
	case "task_list":
		out = b.ListAll()
	case "claim_task":
		owner := "lead"
		if params.Owner != nil && strings.TrimSpace(*params.Owner) != "" {
			owner = *params.Owner
		}
		out, err = b.Claim(params.TaskID, owner)
	default:
		return anuris.ToolResult{Error: "unknown task tool: " + name}, nil
	}
	if err != nil {
		return anuris.ToolResult{Error: err.Error()}, nil
	}
	return anuris.ToolResult{Content: out}, nil
}

// --- storage ---

func (b *Board) taskPath(id int) string {
	return filepath.Join(b.dir, fmt.Sprintf("task_%d.json", id))
}

// taskIDs returns the ids of well-formed task files, sorted ascending.
// Corrupt or misnamed files are skipped.
func (b *Board) taskIDs() []int {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil
	}
	var ids []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "task_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "task_"), ".json"))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (b *Board) nextID() int {
	ids := b.taskIDs()
	if len(ids) == 0 {
		return 1
	}
	return ids[len(ids)-1] + 1
}

func (b *Board) load(id int) (Task, error) {
	data, err := os.ReadFile(b.taskPath(id))
	if err != nil {
		return Task{}, fmt.Errorf("Task %d not found", id)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, fmt.Errorf("Task %d not found", id)
	}
	return task, nil
}

func (b *Board) loadAll() []Task {
	var tasks []Task
	for _, id := range b.taskIDs() {
		task, err := b.load(id)
		if err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func (b *Board) save(task Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.taskPath(task.ID), data, 0o644)
}

func (b *Board) clearDependency(completedID int) error {
	for _, id := range b.taskIDs() {
		if id == completedID {
			continue
		}
		task, err := b.load(id)
		if err != nil {
			continue
		}
		filtered := task.BlockedBy[:0]
		removed := false
		for _, blocker := range task.BlockedBy {
			if blocker == completedID {
				removed = true
				continue
			}
			filtered = append(filtered, blocker)
		}
		if removed {
			task.BlockedBy = filtered
			if err := b.save(task); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Board) addBlockedBy(id, blockerID int) error {
	task, err := b.load(id)
	if err != nil {
		// Blocking a nonexistent task is a no-op, matching update semantics.
		return nil
	}
	for _, existing := range task.BlockedBy {
		if existing == blockerID {
			return nil
		}
	}
	task.BlockedBy = mergeIDs(task.BlockedBy, []int{blockerID})
	return b.save(task)
}

func mergeIDs(existing, add []int) []int {
	seen := make(map[int]bool, len(existing)+len(add))
	var merged []int
	for _, id := range append(append([]int{}, existing...), add...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, id)
	}
	sort.Ints(merged)
	return merged
}

func renderIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func renderJSON(task Task) string {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Sprintf("Task %d", task.ID)
	}
	return string(data)
}
