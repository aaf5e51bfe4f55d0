// Package subagent provides the task tool: it delegates a subtask to a
// fresh-context nested agent loop and returns only the final summary.
package subagent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	anuris "github.com/anuris-ai/anuris"
	"github.com/anuris-ai/anuris/internal/workspace"
	"github.com/anuris-ai/anuris/tools/file"
	"github.com/anuris-ai/anuris/tools/shell"
)

const systemBrief = "You are a coding subagent. Complete the task and return a concise summary."

// Tool implements the task tool. The child runner shares the parent's
// workspace root and model but drops every higher-level capability: no todo,
// no task board, no skills, no background tasks, no team, no compaction, and
// no further delegation.
type Tool struct {
	client          anuris.CompletionClient
	root            *workspace.Root
	parentMaxRounds int
	requireReason   bool
	logger          *slog.Logger
	tracer          anuris.Tracer
}

// Option configures the subagent tool.
type Option func(*Tool)

// WithRequireReasoning propagates reasoning retention to child runners.
func WithRequireReasoning(v bool) Option {
	return func(t *Tool) { t.requireReason = v }
}

// WithLogger sets the logger passed to child runners.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithTracer sets the tracer for delegation spans.
func WithTracer(tr anuris.Tracer) Option {
	return func(t *Tool) { t.tracer = tr }
}

// New builds the task tool. parentMaxRounds is the caller's round budget;
// children run with half of it, floored at 4.
func New(client anuris.CompletionClient, root *workspace.Root, parentMaxRounds int, opts ...Option) *Tool {
	t := &Tool{
		client:          client,
		root:            root,
		parentMaxRounds: parentMaxRounds,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []anuris.ToolDefinition {
	return []anuris.ToolDefinition{
		{
			Name:        "task",
			Description: "Spawn a subagent with fresh context to handle a subtask.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"prompt":{"type":"string"},"agent_type":{"type":"string","enum":["Explore","general-purpose"]}},"required":["prompt"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (anuris.ToolResult, error) {
	var params struct {
		Prompt    string `json:"prompt"`
		AgentType string `json:"agent_type"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return anuris.ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
	}
	if t.client == nil {
		return anuris.ToolResult{Error: "Subagent runner unavailable"}, nil
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return anuris.ToolResult{Error: "prompt is required"}, nil
	}
	if params.AgentType == "" {
		params.AgentType = "Explore"
	}

	summary, err := t.runChild(ctx, params.Prompt, params.AgentType)
	if err != nil {
		return anuris.ToolResult{Error: err.Error()}, nil
	}
	return anuris.ToolResult{Content: summary}, nil
}

func (t *Tool) runChild(ctx context.Context, prompt, agentType string) (string, error) {
	if t.tracer != nil {
		var span anuris.Span
		ctx, span = t.tracer.Start(ctx, "subagent.run",
			anuris.StringAttr("agent_type", agentType))
		defer span.End()
	}

	// Explore subagents never mutate the workspace.
	fileOpts := []file.Option{}
	if agentType == "Explore" {
		fileOpts = append(fileOpts, file.ReadOnly())
	}
	executor := anuris.NewExecutor(
		anuris.WithTools(file.New(t.root, fileOpts...), shell.New(t.root)),
		anuris.WithExecutorLogger(t.logger),
		anuris.WithExecutorTracer(t.tracer),
	)

	rounds := t.parentMaxRounds / 2
	if rounds < 4 {
		rounds = 4
	}
	runner := anuris.NewRunner(t.client, executor,
		anuris.WithMaxRounds(rounds),
		anuris.WithRequireReasoning(t.requireReason),
		anuris.WithInstruction(systemBrief),
		anuris.WithRunnerLogger(t.logger),
		anuris.WithRunnerTracer(t.tracer),
	)

	result, err := runner.Run(ctx, []anuris.ChatMessage{anuris.UserMessage(prompt)}, nil, nil)
	if err != nil {
		return "", err
	}
	if result.FinalText == "" {
		return "(no summary)", nil
	}
	return result.FinalText, nil
}
