package team

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	anuris "github.com/anuris-ai/anuris"
	"github.com/anuris-ai/anuris/internal/workspace"
	"github.com/anuris-ai/anuris/tools/file"
	"github.com/anuris-ai/anuris/tools/shell"
)

// Worker runs one teammate loop: a reduced tool set, role-based capability
// restrictions, budget enforcement, and inbox polling while idle.
type Worker struct {
	name     string
	role     string
	readOnly bool

	client    anuris.CompletionClient
	manager   *Manager
	board     anuris.TaskBoard
	fileTool  anuris.Tool
	shellTool anuris.Tool
	budget    Budget
	logger    *slog.Logger
	tracer    anuris.Tracer

	stopping bool
}

// WorkerOption configures spawned workers.
type WorkerOption func(*workerConfig)

type workerConfig struct {
	board  anuris.TaskBoard
	budget Budget
	logger *slog.Logger
	tracer anuris.Tracer
}

// WithBoard lets idle workers auto-claim unblocked tasks.
func WithBoard(b anuris.TaskBoard) WorkerOption {
	return func(c *workerConfig) { c.board = b }
}

// WithBudget overrides the default worker budget.
func WithBudget(b Budget) WorkerOption {
	return func(c *workerConfig) { c.budget = b }
}

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(c *workerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWorkerTracer sets the worker tracer.
func WithWorkerTracer(t anuris.Tracer) WorkerOption {
	return func(c *workerConfig) { c.tracer = t }
}

// NewWorkerRunner builds the WorkerRunner the manager invokes per spawn.
// Each spawn gets a fresh Worker over the shared workspace root.
func NewWorkerRunner(client anuris.CompletionClient, root *workspace.Root, manager *Manager, opts ...WorkerOption) WorkerRunner {
	cfg := workerConfig{budget: DefaultBudget, logger: nopLogger}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(name, role, prompt string) error {
		w := &Worker{
			name:      name,
			role:      role,
			readOnly:  workspace.IsReadOnlyRole(role),
			client:    client,
			manager:   manager,
			board:     cfg.board,
			fileTool:  file.New(root),
			shellTool: shell.New(root),
			budget:    cfg.budget.withDefaults(),
			logger:    cfg.logger.With("teammate", name),
			tracer:    cfg.tracer,
		}
		return w.run(context.Background(), prompt)
	}
}

func (w *Worker) run(ctx context.Context, prompt string) error {
	tracker := NewBudgetTracker(w.budget)
	conv := []anuris.ChatMessage{
		anuris.SystemMessage(w.identity()),
		anuris.UserMessage(prompt),
	}

	for {
		if reason, over := tracker.Exceeded(); over {
			w.autoStop(reason)
			return nil
		}

		roundCtx := ctx
		var span anuris.Span
		if w.tracer != nil {
			roundCtx, span = w.tracer.Start(ctx, "teammate.round",
				anuris.StringAttr("teammate", w.name))
		}
		resp, err := w.client.Chat(roundCtx, anuris.ChatRequest{
			Messages:   conv,
			Tools:      w.definitions(),
			ToolChoice: "auto",
		})
		if span != nil {
			if err != nil {
				span.Error(err)
			}
			span.End()
		}
		if err != nil {
			return err
		}
		tracker.CountRound()

		conv = append(conv, anuris.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		wantIdle := len(resp.ToolCalls) == 0
		for _, tc := range resp.ToolCalls {
			if reason, over := tracker.Exceeded(); over {
				w.autoStop(reason)
				return nil
			}
			tracker.CountToolCall()
			output, idle := w.executeTool(roundCtx, tc)
			w.logger.Debug("teammate tool", "tool", tc.Name, "output", truncate(output, 200))
			conv = append(conv, anuris.ToolResultMessage(tc.ID, output))
			if idle {
				wantIdle = true
			}
		}

		if w.stopping {
			// Shutdown approval already flipped the member status.
			return nil
		}
		if !wantIdle {
			continue
		}

		resumed := w.idlePoll(&conv)
		if !resumed {
			w.autoStop(fmt.Sprintf("idle timeout exceeded (%ds)", int(w.budget.IdleTimeout.Seconds())))
			return nil
		}
		w.manager.SetMemberStatus(w.name, "working")
	}
}

// idlePoll parks the worker in idle status and polls its inbox. New inbox
// messages or a claimed task resume the loop; returns false on timeout.
func (w *Worker) idlePoll(conv *[]anuris.ChatMessage) bool {
	w.manager.SetMemberStatus(w.name, "idle")
	deadline := time.Now().Add(w.budget.IdleTimeout)

	for time.Now().Before(deadline) {
		time.Sleep(w.budget.PollInterval)

		if messages := w.manager.ReadInbox(w.name); len(messages) > 0 {
			for _, msg := range messages {
				data, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				*conv = append(*conv, anuris.UserMessage(string(data)))
			}
			return true
		}

		if w.board != nil {
			if claimed, ok := w.board.ClaimNextUnblocked(w.name); ok {
				// After heavy compaction the skeleton loses the identity
				// message, so re-anchor before handing over the task.
				if len(*conv) <= 3 {
					*conv = append(*conv, anuris.UserMessage(w.identity()))
				}
				*conv = append(*conv, anuris.UserMessage(fmt.Sprintf(
					"<auto-claimed>Task #%d: %s\n%s</auto-claimed>",
					claimed.ID, claimed.Subject, claimed.Description)))
				return true
			}
		}
	}
	return false
}

// autoStop reports a budget violation to the lead and flips the member to
// shutdown.
func (w *Worker) autoStop(reason string) {
	w.logger.Info("teammate auto-stop", "reason", reason)
	w.manager.Bus().Send(Message{
		Type:    "message",
		From:    w.name,
		Content: "[auto-stop] " + reason,
	}, "lead")
	w.manager.SetMemberStatus(w.name, "shutdown")
}

func (w *Worker) identity() string {
	lines := []string{
		fmt.Sprintf("You are teammate '%s' (role: %s) working in a shared workspace.", w.name, w.role),
		"Coordinate through send_message and read_inbox. Submit plans with plan_submit before large changes.",
		"Call idle when you have no more work; you will be resumed when messages or tasks arrive.",
	}
	if w.readOnly {
		lines = append(lines, "Your role is read-only: you cannot write or edit files, and bash is limited to read-only commands.")
	}
	return strings.Join(lines, "\n")
}

func (w *Worker) definitions() []anuris.ToolDefinition {
	defs := append(w.fileTool.Definitions(), w.shellTool.Definitions()...)
	defs = append(defs,
		anuris.ToolDefinition{
			Name:        "send_message",
			Description: "Send a message to another teammate or the lead.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"to":{"type":"string"},"content":{"type":"string"},"msg_type":{"type":"string"}},"required":["to","content"]}`),
		},
		anuris.ToolDefinition{
			Name:        "read_inbox",
			Description: "Drain and return your own inbox as JSON.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		anuris.ToolDefinition{
			Name:        "shutdown_response",
			Description: "Respond to a shutdown request from the lead.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"request_id":{"type":"string"},"approve":{"type":"boolean"},"reason":{"type":"string"}},"required":["request_id","approve"]}`),
		},
		anuris.ToolDefinition{
			Name:        "plan_submit",
			Description: "Submit a plan for lead approval before large changes.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"plan":{"type":"string"}},"required":["plan"]}`),
		},
		anuris.ToolDefinition{
			Name:        "claim_task",
			Description: "Claim a task from the shared board.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"integer"},"owner":{"type":"string"}},"required":["task_id"]}`),
		},
		anuris.ToolDefinition{
			Name:        "idle",
			Description: "Signal that you have no more work and should wait for messages or tasks.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	)
	return defs
}

// executeTool dispatches one teammate tool call and returns the result
// string plus whether the worker asked to go idle.
func (w *Worker) executeTool(ctx context.Context, tc anuris.ToolCall) (string, bool) {
	var params struct {
		To        string `json:"to"`
		Content   string `json:"content"`
		MsgType   string `json:"msg_type"`
		RequestID string `json:"request_id"`
		Approve   bool   `json:"approve"`
		Reason    string `json:"reason"`
		Plan      string `json:"plan"`
		TaskID    int    `json:"task_id"`
		Owner     string `json:"owner"`
		Command   string `json:"command"`
	}
	if len(tc.Args) > 0 {
		if err := json.Unmarshal(tc.Args, &params); err != nil {
			return "Error: invalid args: " + err.Error(), false
		}
	}

	switch tc.Name {
	case "send_message":
		return w.manager.SendMessage(w.name, params.To, params.Content, params.MsgType), false
	case "read_inbox":
		return w.manager.ReadInboxText(w.name), false
	case "shutdown_response":
		out := w.manager.RecordShutdownResponse(w.name, params.RequestID, params.Approve, params.Reason)
		if params.Approve {
			w.stopping = true
		}
		return out, false
	case "plan_submit":
		return w.manager.SubmitPlan(w.name, params.Plan), false
	case "claim_task":
		if w.board == nil {
			return "Error: Task manager unavailable", false
		}
		owner := params.Owner
		if strings.TrimSpace(owner) == "" {
			owner = w.name
		}
		out, err := w.board.Claim(params.TaskID, owner)
		if err != nil {
			return "Error: " + err.Error(), false
		}
		return out, false
	case "idle":
		return "(idle)", true
	case "write_file", "edit_file":
		if w.readOnly {
			return fmt.Sprintf("Error: Role '%s' is read-only; %s is blocked", w.role, tc.Name), false
		}
		return toolString(ctx, w.fileTool, tc), false
	case "read_file":
		return toolString(ctx, w.fileTool, tc), false
	case "bash":
		if w.readOnly {
			if err := workspace.CheckReadOnlyCommand(params.Command); err != nil {
				return fmt.Sprintf("Error: Role '%s' is read-only; %s", w.role, err.Error()), false
			}
		}
		return toolString(ctx, w.shellTool, tc), false
	default:
		return fmt.Sprintf("Error: Unknown tool '%s'", tc.Name), false
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// toolString converts a Tool execution into the plain string fed back to
// the model.
func toolString(ctx context.Context, tool anuris.Tool, tc anuris.ToolCall) string {
	result, err := tool.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		return "Error: " + err.Error()
	}
	if result.Error != "" {
		return "Error: " + result.Error
	}
	return result.Content
}
