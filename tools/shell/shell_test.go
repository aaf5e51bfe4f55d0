package shell

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/anuris-ai/anuris/internal/workspace"
)

func newTool(t *testing.T, opts ...Option) *Tool {
	t.Helper()
	root, err := workspace.NewRoot(t.TempDir())
	if err != nil {
		t.Fatalf("new root: %v", err)
	}
	return New(root, opts...)
}

func args(t *testing.T, command string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestBashEcho(t *testing.T) {
	tool := newTool(t)
	result, err := tool.Execute(context.Background(), "bash", args(t, "echo hello"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Error != "" {
		t.Fatalf("error = %q", result.Error)
	}
	if result.Content != "hello" {
		t.Fatalf("content = %q", result.Content)
	}
}

func TestBashNoOutput(t *testing.T) {
	tool := newTool(t)
	result, _ := tool.Execute(context.Background(), "bash", args(t, "true"))
	if result.Content != "(no output)" {
		t.Fatalf("content = %q", result.Content)
	}
}

func TestBashEmptyCommand(t *testing.T) {
	tool := newTool(t)
	result, _ := tool.Execute(context.Background(), "bash", json.RawMessage(`{}`))
	if result.Error != "command is required" {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestBashDangerousBlocked(t *testing.T) {
	tool := newTool(t)
	result, _ := tool.Execute(context.Background(), "bash", args(t, "sudo rm -rf /"))
	if !strings.Contains(result.Error, "Dangerous command blocked") {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestBashFailureKeepsOutput(t *testing.T) {
	tool := newTool(t)
	result, _ := tool.Execute(context.Background(), "bash", args(t, "echo oops >&2; exit 3"))
	if result.Error != "" {
		t.Fatalf("error = %q", result.Error)
	}
	if result.Content != "oops" {
		t.Fatalf("content = %q", result.Content)
	}
}

func TestRunTimeout(t *testing.T) {
	root, err := workspace.NewRoot(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	_, err = Run(context.Background(), root.Path(), "sleep 5", 100*time.Millisecond)
	if err == nil || err.Error() != "Timeout (0.1s)" {
		t.Fatalf("err = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("returned after %v, expected prompt return at the deadline", elapsed)
	}
}

func TestRunTimeoutUnblockedByLingeringChild(t *testing.T) {
	root, err := workspace.NewRoot(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	// The shell spawns a child that inherits the output pipes and outlives
	// the deadline; Run must not wait for it.
	start := time.Now()
	_, err = Run(context.Background(), root.Path(), "sleep 10 & sleep 10", 100*time.Millisecond)
	if err == nil || err.Error() != "Timeout (0.1s)" {
		t.Fatalf("err = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("returned after %v, expected prompt return at the deadline", elapsed)
	}
}

func TestRunReturnsWhenChildHoldsPipes(t *testing.T) {
	root, err := workspace.NewRoot(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	out, err := Run(context.Background(), root.Path(), "sleep 10 & echo started", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if out != "started" {
		t.Fatalf("out = %q", out)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("returned after %v, expected return when the shell exits", elapsed)
	}
}

func TestRunRunsInDir(t *testing.T) {
	root, err := workspace.NewRoot(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	out, err := Run(context.Background(), root.Path(), "pwd", DefaultTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if out != root.Path() {
		t.Fatalf("pwd = %q, want %q", out, root.Path())
	}
}
