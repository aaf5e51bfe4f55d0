package anuris

import (
	"context"
	"fmt"
	"log/slog"
)

// TaskBoard is the persistent task board capability. tools/taskboard provides
// the file-backed implementation; it also implements Tool so registering it
// via WithTaskBoard exposes the task_* tools.
type TaskBoard interface {
	// ListAll renders one line per task sorted by id.
	ListAll() string
	// Claim sets owner on a task and moves it to in_progress, returning the
	// updated JSON record.
	Claim(id int, owner string) (string, error)
	// ClaimNextUnblocked picks the lowest-id pending task with no blockers,
	// assigns owner, and returns it. ok is false when no task qualifies.
	ClaimNextUnblocked(owner string) (ClaimedTask, bool)
}

// ClaimedTask is the record returned by TaskBoard.ClaimNextUnblocked.
type ClaimedTask struct {
	ID          int
	Subject     string
	Description string
}

// SkillCatalog is the skill loader capability. tools/skill provides the
// directory-scanning implementation.
type SkillCatalog interface {
	// Descriptions returns a compact name: description list for system-prompt
	// injection.
	Descriptions() string
	// RenderCatalog returns a human-readable catalog with paths.
	RenderCatalog() string
}

// BackgroundNotification records one background task completion, queued for
// the runner to drain into the conversation.
type BackgroundNotification struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Command string `json:"command"`
	Result  string `json:"result"`
}

// BackgroundRunner is the async shell task capability. tools/background
// provides the implementation.
type BackgroundRunner interface {
	// Check returns a snapshot for one task, or a multi-line list when
	// taskID is empty.
	Check(taskID string) string
	// Drain atomically removes and returns all pending notifications.
	Drain() []BackgroundNotification
}

// TeamOps is the teammate coordination capability. tools/team provides the
// file-backed implementation.
type TeamOps interface {
	ListMembers() string
	ReadInboxText(name string) string
	ListPlanRequests() string
	ListShutdownRequests() string
}

// Executor routes tool calls by name to registered Tool implementations and
// converts every failure into a plain string so the agent loop can continue.
type Executor struct {
	tools      map[string]Tool
	defs       []ToolDefinition
	todo       *TodoManager
	board      TaskBoard
	skills     SkillCatalog
	background BackgroundRunner
	team       TeamOps
	subagent   bool
	logger     *slog.Logger
	tracer     Tracer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTools registers plain tools (file, shell).
func WithTools(tools ...Tool) ExecutorOption {
	return func(e *Executor) {
		for _, t := range tools {
			e.register(t)
		}
	}
}

// WithTodo enables the TodoWrite tool over the given manager.
func WithTodo(m *TodoManager) ExecutorOption {
	return func(e *Executor) {
		e.todo = m
		e.register(NewTodoTool(m))
	}
}

// WithTaskBoard enables the task_* tools. When the board also implements
// Tool its tool functions are registered.
func WithTaskBoard(b TaskBoard) ExecutorOption {
	return func(e *Executor) {
		e.board = b
		if t, ok := b.(Tool); ok {
			e.register(t)
		}
	}
}

// WithSkills enables the load_skill tool and skill catalog injection.
func WithSkills(c SkillCatalog) ExecutorOption {
	return func(e *Executor) {
		e.skills = c
		if t, ok := c.(Tool); ok {
			e.register(t)
		}
	}
}

// WithBackground enables background_run/check_background and notification
// draining.
func WithBackground(b BackgroundRunner) ExecutorOption {
	return func(e *Executor) {
		e.background = b
		if t, ok := b.(Tool); ok {
			e.register(t)
		}
	}
}

// WithTeam enables the lead-side team tools.
func WithTeam(t TeamOps) ExecutorOption {
	return func(e *Executor) {
		e.team = t
		if tool, ok := t.(Tool); ok {
			e.register(tool)
		}
	}
}

// WithSubagent enables the task delegation tool.
func WithSubagent(t Tool) ExecutorOption {
	return func(e *Executor) {
		e.subagent = true
		e.register(t)
	}
}

// WithExecutorLogger sets the logger. Nil falls back to a nop logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithExecutorTracer sets the tracer. Nil disables tool spans.
func WithExecutorTracer(t Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = t
	}
}

// NewExecutor builds an executor from the given capability options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		tools:  make(map[string]Tool),
		logger: nopLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) register(t Tool) {
	for _, def := range t.Definitions() {
		if _, exists := e.tools[def.Name]; exists {
			continue
		}
		e.tools[def.Name] = t
		e.defs = append(e.defs, def)
	}
}

// Definitions returns all registered tool definitions in registration order,
// for inclusion in the completion request.
func (e *Executor) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, len(e.defs))
	copy(out, e.defs)
	return out
}

// Execute runs one tool call and returns the string handed back to the model.
// Unknown names, handler errors, and panics all become "Error: ..." strings.
func (e *Executor) Execute(ctx context.Context, tc ToolCall) string {
	tool, ok := e.tools[tc.Name]
	if !ok {
		return fmt.Sprintf("Error: Unknown tool '%s'", tc.Name)
	}

	if e.tracer != nil {
		var span Span
		ctx, span = e.tracer.Start(ctx, "tool.execute", StringAttr("tool", tc.Name))
		defer span.End()
	}

	result, err := safeExecute(ctx, tool, tc)
	if err != nil {
		e.logger.Warn("tool failed", "tool", tc.Name, "error", err)
		return "Error: " + err.Error()
	}
	if result.Error != "" {
		e.logger.Warn("tool returned error", "tool", tc.Name, "error", result.Error)
		return "Error: " + result.Error
	}
	return result.Content
}

// safeExecute wraps a tool call with panic recovery so a misbehaving handler
// cannot crash the loop.
func safeExecute(ctx context.Context, tool Tool, tc ToolCall) (result ToolResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %q panic: %v", tc.Name, p)
		}
	}()
	return tool.Execute(ctx, tc.Name, tc.Args)
}

// DrainBackground removes and returns all pending background notifications.
// Returns nil when background tasks are disabled.
func (e *Executor) DrainBackground() []BackgroundNotification {
	if e.background == nil {
		return nil
	}
	return e.background.Drain()
}

// HasTodo reports whether the TodoWrite tool is enabled.
func (e *Executor) HasTodo() bool { return e.todo != nil }

// HasSubagent reports whether the task delegation tool is enabled.
func (e *Executor) HasSubagent() bool { return e.subagent }

// HasTaskBoard reports whether the task board is enabled.
func (e *Executor) HasTaskBoard() bool { return e.board != nil }

// HasSkills reports whether skill loading is enabled.
func (e *Executor) HasSkills() bool { return e.skills != nil }

// HasBackground reports whether background tasks are enabled.
func (e *Executor) HasBackground() bool { return e.background != nil }

// HasTeam reports whether team operations are enabled.
func (e *Executor) HasTeam() bool { return e.team != nil }

// TaskBoard returns the configured board, or nil.
func (e *Executor) TaskBoard() TaskBoard { return e.board }

// TodoSnapshot renders the current todo board for host commands.
func (e *Executor) TodoSnapshot() string {
	if e.todo == nil {
		return "Todo manager unavailable"
	}
	return e.todo.Render()
}

// TaskSnapshot renders the persistent task board.
func (e *Executor) TaskSnapshot() string {
	if e.board == nil {
		return "Task manager unavailable"
	}
	return e.board.ListAll()
}

// SkillSnapshot renders the skill catalog with paths.
func (e *Executor) SkillSnapshot() string {
	if e.skills == nil {
		return "Skill loader unavailable"
	}
	return e.skills.RenderCatalog()
}

// SkillDescriptions returns the compact skill list for prompt injection.
func (e *Executor) SkillDescriptions() string {
	if e.skills == nil {
		return "(skill loading disabled)"
	}
	return e.skills.Descriptions()
}

// BackgroundSnapshot renders background task status.
func (e *Executor) BackgroundSnapshot(taskID string) string {
	if e.background == nil {
		return "Background manager unavailable"
	}
	return e.background.Check(taskID)
}

// TeamSnapshot renders team membership.
func (e *Executor) TeamSnapshot() string {
	if e.team == nil {
		return "Team manager unavailable"
	}
	return e.team.ListMembers()
}

// InboxSnapshot drains and renders an inbox. Empty name means lead.
func (e *Executor) InboxSnapshot(name string) string {
	if e.team == nil {
		return "Team manager unavailable"
	}
	if name == "" {
		name = "lead"
	}
	return e.team.ReadInboxText(name)
}

// PlanSnapshot renders pending and resolved plan approval requests.
func (e *Executor) PlanSnapshot() string {
	if e.team == nil {
		return "Team manager unavailable"
	}
	return e.team.ListPlanRequests()
}

// ShutdownSnapshot renders shutdown request status.
func (e *Executor) ShutdownSnapshot() string {
	if e.team == nil {
		return "Team manager unavailable"
	}
	return e.team.ListShutdownRequests()
}
