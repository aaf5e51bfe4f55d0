// Package shell provides the sandboxed bash tool.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	anuris "github.com/anuris-ai/anuris"
	"github.com/anuris-ai/anuris/internal/workspace"
)

const (
	// DefaultTimeout is the wall-clock limit for foreground bash commands.
	DefaultTimeout = 120 * time.Second

	// maxOutputBytes caps captured stdout+stderr.
	maxOutputBytes = 50000
)

// Tool executes shell commands in the workspace directory.
type Tool struct {
	root    *workspace.Root
	timeout time.Duration
}

// Option configures the shell tool.
type Option func(*Tool)

// WithTimeout overrides the default command timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Tool) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// New creates a shell tool running commands under root.
func New(root *workspace.Root, opts ...Option) *Tool {
	t := &Tool{root: root, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []anuris.ToolDefinition {
	return []anuris.ToolDefinition{{
		Name:        "bash",
		Description: "Run a shell command in the workspace directory and return stdout + stderr.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","description":"Shell command to execute"}},"required":["command"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (anuris.ToolResult, error) {
	var params struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return anuris.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if params.Command == "" {
		return anuris.ToolResult{Error: "command is required"}, nil
	}

	output, err := Run(ctx, t.root.Path(), params.Command, t.timeout)
	if err != nil {
		return anuris.ToolResult{Error: err.Error()}, nil
	}
	return anuris.ToolResult{Content: output}, nil
}

// Run executes command with sh -c in dir under the given timeout and returns
// the combined, trimmed, truncated output. Dangerous commands are rejected.
// A deadline hit yields the error "Timeout (Ns)". Shared with the background
// task manager.
func Run(ctx context.Context, dir, command string, timeout time.Duration) (string, error) {
	if err := workspace.CheckCommand(command); err != nil {
		return "", err
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = dir
	// Run must return promptly at the deadline even when a child keeps the
	// inherited output pipes open past the shell's exit.
	cmd.WaitDelay = 100 * time.Millisecond

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("Timeout (%gs)", timeout.Seconds())
	}

	output := strings.TrimSpace(buf.String())
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes]
	}
	if output == "" {
		if runErr != nil {
			return "", runErr
		}
		return "(no output)", nil
	}
	// A failing command still returns its output so the model can read the
	// error text.
	return output, nil
}
