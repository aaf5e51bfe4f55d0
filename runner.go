package anuris

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const defaultMaxRounds = 16

// RunResult is the outcome of one agent turn.
type RunResult struct {
	FinalText  string
	Rounds     int
	ToolEvents []string
}

// ProgressFunc receives human-readable progress lines during a run:
// "[agent] round N...", "[tool] <event>", "[compact] ...".
type ProgressFunc func(line string)

// Runner drives the bounded round loop: call the model, execute requested
// tool calls, feed results back, repeat until the model answers without
// tools or the round budget runs out.
type Runner struct {
	client           CompletionClient
	executor         *Executor
	compactor        *Compactor
	maxRounds        int
	requireReasoning bool
	instruction      string
	logger           *slog.Logger
	tracer           Tracer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxRounds sets the round budget. Default 16.
func WithMaxRounds(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxRounds = n
		}
	}
}

// WithCompactor enables two-level context compaction.
func WithCompactor(c *Compactor) RunnerOption {
	return func(r *Runner) { r.compactor = c }
}

// WithRequireReasoning keeps reasoning_content on assistant messages, for
// providers that echo reasoning back on subsequent requests.
func WithRequireReasoning(v bool) RunnerOption {
	return func(r *Runner) { r.requireReasoning = v }
}

// WithInstruction overrides the generated agent-instruction system message.
// The value is resolved as a prompt source: a readable file path loads the
// file, anything else is used literally.
func WithInstruction(s string) RunnerOption {
	return func(r *Runner) { r.instruction = ResolvePromptSource(s) }
}

// WithRunnerLogger sets the logger. Nil falls back to a nop logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRunnerTracer sets the tracer. Nil disables round spans.
func WithRunnerTracer(t Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// NewRunner creates a runner over the given client and executor.
func NewRunner(client CompletionClient, executor *Executor, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:    client,
		executor:  executor,
		maxRounds: defaultMaxRounds,
		logger:    nopLogger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolvePromptSource resolves a system-prompt override: if the string names
// a readable file, its contents are used; otherwise the literal string is.
func ResolvePromptSource(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if info, err := os.Stat(trimmed); err == nil && !info.IsDir() {
		if data, err := os.ReadFile(trimmed); err == nil {
			return string(data)
		}
	}
	return s
}

// Run executes one agent turn. messages must be non-empty; attachments, when
// present, are folded into the last user message as content blocks; progress
// may be nil.
func (r *Runner) Run(ctx context.Context, messages []ChatMessage, attachments []ContentBlock, progress ProgressFunc) (RunResult, error) {
	if len(messages) == 0 {
		return RunResult{}, fmt.Errorf("invalid messages format")
	}

	conv := make([]ChatMessage, 0, len(messages)+1)
	conv = append(conv, SystemMessage(r.agentInstruction()))
	conv = append(conv, messages...)

	if len(attachments) > 0 {
		r.foldAttachments(conv, attachments)
	}

	var toolEvents []string

	for round := 1; round <= r.maxRounds; round++ {
		conv = r.drainBackground(conv)
		var err error
		conv, err = r.compact(ctx, conv, progress)
		if err != nil {
			return RunResult{}, err
		}

		emit(progress, fmt.Sprintf("[agent] round %d...", round))

		roundCtx := ctx
		var roundSpan Span
		if r.tracer != nil {
			roundCtx, roundSpan = r.tracer.Start(ctx, "agent.round",
				IntAttr("round", round),
				IntAttr("messages", len(conv)))
		}

		resp, err := r.client.Chat(roundCtx, ChatRequest{
			Messages:   conv,
			Tools:      r.executor.Definitions(),
			ToolChoice: "auto",
		})
		if err != nil {
			if roundSpan != nil {
				roundSpan.Error(err)
				roundSpan.End()
			}
			return RunResult{}, err
		}

		assistant := ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		if r.requireReasoning {
			assistant.Reasoning = resp.Reasoning
		}
		conv = append(conv, assistant)

		if len(resp.ToolCalls) == 0 {
			if roundSpan != nil {
				roundSpan.End()
			}
			r.logger.Info("turn complete", "rounds", round, "tool_events", len(toolEvents))
			return RunResult{
				FinalText:  resp.Content,
				Rounds:     round,
				ToolEvents: toolEvents,
			}, nil
		}

		if roundSpan != nil {
			roundSpan.SetAttr(IntAttr("tool_calls", len(resp.ToolCalls)))
		}

		for _, tc := range resp.ToolCalls {
			output := r.executor.Execute(roundCtx, tc)
			event := fmt.Sprintf("%s -> %s", tc.Name, truncateStr(output, 200))
			toolEvents = append(toolEvents, event)
			emit(progress, "[tool] "+event)
			conv = append(conv, ToolResultMessage(tc.ID, output))
		}
		if roundSpan != nil {
			roundSpan.End()
		}
	}

	return RunResult{}, &ErrMaxRounds{MaxRounds: r.maxRounds}
}

// agentInstruction builds the preamble system message from the enabled
// capabilities.
func (r *Runner) agentInstruction() string {
	if r.instruction != "" {
		return r.instruction
	}
	lines := []string{"You are a coding agent. Prefer tools over long prose."}
	if r.executor.HasTodo() {
		lines = append(lines, "Use TodoWrite for multi-step tasks. Keep exactly one item in_progress.")
	}
	if r.executor.HasSubagent() {
		lines = append(lines, "Use task to delegate subtasks with fresh context when helpful.")
	}
	if r.executor.HasTaskBoard() {
		lines = append(lines, "Use task_create/task_update/task_list to persist longer-running plans.")
	}
	if r.executor.HasSkills() {
		lines = append(lines, "Use load_skill to pull in detailed instructions when a skill matches the task.")
		if desc := r.executor.SkillDescriptions(); desc != "" {
			lines = append(lines, "Available skills:\n"+desc)
		}
	}
	if r.executor.HasBackground() {
		lines = append(lines, "Use background_run for long shell commands; completions arrive as background results.")
	}
	if r.executor.HasTeam() {
		lines = append(lines, "Use spawn_teammate/send_message/broadcast to coordinate persistent teammates.")
	}
	return strings.Join(lines, "\n")
}

// foldAttachments converts the last user message to a content-block list
// with its text first, followed by the attachment blocks.
func (r *Runner) foldAttachments(conv []ChatMessage, attachments []ContentBlock) {
	last := len(conv) - 1
	if last < 0 || conv[last].Role != "user" {
		return
	}
	blocks := make([]ContentBlock, 0, len(attachments)+1)
	blocks = append(blocks, TextBlock(conv[last].Content))
	blocks = append(blocks, attachments...)
	conv[last].Content = ""
	conv[last].Blocks = blocks
}

// drainBackground splices pending background notifications into the
// conversation as a tagged user message plus an assistant ack, so they
// appear before this round's model call.
func (r *Runner) drainBackground(conv []ChatMessage) []ChatMessage {
	notifications := r.executor.DrainBackground()
	if len(notifications) == 0 {
		return conv
	}

	var b strings.Builder
	b.WriteString("<background-results>\n")
	for _, n := range notifications {
		line, err := json.Marshal(n)
		if err != nil {
			continue
		}
		b.Write(line)
		b.WriteString("\n")
	}
	b.WriteString("</background-results>")

	r.logger.Info("background notifications drained", "count", len(notifications))
	conv = append(conv, UserMessage(b.String()))
	conv = append(conv, AssistantMessage("Acknowledged background results."))
	return conv
}

// compact runs micro-compact in place and auto-compact when over threshold.
func (r *Runner) compact(ctx context.Context, conv []ChatMessage, progress ProgressFunc) ([]ChatMessage, error) {
	if r.compactor == nil {
		return conv, nil
	}
	r.compactor.MicroCompact(conv)
	if !r.compactor.ShouldAutoCompact(conv) {
		return conv, nil
	}
	emit(progress, "[compact] summarizing conversation...")
	compacted, err := r.compactor.AutoCompact(ctx, conv, "")
	if err != nil {
		// Degrade to the uncompacted conversation rather than failing the turn.
		r.logger.Warn("auto-compact failed, continuing uncompacted", "error", err)
		return conv, nil
	}
	return compacted, nil
}

func emit(progress ProgressFunc, line string) {
	if progress != nil {
		progress(line)
	}
}

// truncateStr truncates a string to n runes.
func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
