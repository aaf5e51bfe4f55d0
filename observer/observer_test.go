package observer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	anuris "github.com/anuris-ai/anuris"
)

// mockClient for observer tests.
type mockClient struct {
	name     string
	chatResp anuris.ChatResponse
	chatErr  error
}

func (m *mockClient) Name() string { return m.name }
func (m *mockClient) Chat(_ context.Context, _ anuris.ChatRequest) (anuris.ChatResponse, error) {
	return m.chatResp, m.chatErr
}
func (m *mockClient) Stream(_ context.Context, _ anuris.ChatRequest) (anuris.StreamResult, error) {
	return anuris.StreamResult{Content: m.chatResp.Content}, m.chatErr
}

// mockTool for observer tests.
type mockTool struct {
	defs   []anuris.ToolDefinition
	result anuris.ToolResult
	err    error
}

func (m *mockTool) Definitions() []anuris.ToolDefinition { return m.defs }
func (m *mockTool) Execute(_ context.Context, _ string, _ json.RawMessage) (anuris.ToolResult, error) {
	return m.result, m.err
}

// testInstruments creates a no-op Instruments using the global OTEL providers
// (which are no-ops by default). This is safe for testing delegation behavior
// without any real OTEL backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments()
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

func TestObservedToolDefinitions(t *testing.T) {
	defs := []anuris.ToolDefinition{
		{Name: "bash", Description: "run a shell command"},
		{Name: "read_file", Description: "read a file"},
	}
	inner := &mockTool{defs: defs}
	ot := WrapTool(inner, testInstruments(t))

	got := ot.Definitions()
	if len(got) != len(defs) {
		t.Fatalf("Definitions length = %d, want %d", len(got), len(defs))
	}
	for i, d := range got {
		if d.Name != defs[i].Name {
			t.Errorf("Definitions[%d].Name = %q, want %q", i, d.Name, defs[i].Name)
		}
	}
}

func TestObservedToolExecute(t *testing.T) {
	want := anuris.ToolResult{Content: "result data"}
	inner := &mockTool{result: want}
	ot := WrapTool(inner, testInstruments(t))

	got, err := ot.Execute(context.Background(), "bash", json.RawMessage(`{"command":"ls"}`))
	if err != nil {
		t.Fatalf("Execute returned unexpected error: %v", err)
	}
	if got.Content != want.Content {
		t.Errorf("Content = %q, want %q", got.Content, want.Content)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want empty", got.Error)
	}
}

func TestObservedToolExecuteToolError(t *testing.T) {
	inner := &mockTool{result: anuris.ToolResult{Error: "file not found"}}
	ot := WrapTool(inner, testInstruments(t))

	got, err := ot.Execute(context.Background(), "read_file", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute returned unexpected error: %v", err)
	}
	if got.Error != "file not found" {
		t.Errorf("Error = %q, want %q", got.Error, "file not found")
	}
}

func TestObservedToolExecuteError(t *testing.T) {
	wantErr := errors.New("tool broken")
	inner := &mockTool{err: wantErr}
	ot := WrapTool(inner, testInstruments(t))

	_, err := ot.Execute(context.Background(), "bash", json.RawMessage(`{}`))
	if !errors.Is(err, wantErr) {
		t.Errorf("Execute error = %v, want %v", err, wantErr)
	}
}

func TestObservedClientName(t *testing.T) {
	inner := &mockClient{name: "test-client"}
	oc := WrapClient(inner, testInstruments(t))
	if got := oc.Name(); got != "test-client" {
		t.Errorf("Name = %q, want %q", got, "test-client")
	}
}

func TestObservedClientChat(t *testing.T) {
	inner := &mockClient{chatResp: anuris.ChatResponse{Content: "hi"}}
	oc := WrapClient(inner, testInstruments(t))

	resp, err := oc.Chat(context.Background(), anuris.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat returned unexpected error: %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("Content = %q, want %q", resp.Content, "hi")
	}
}

func TestObservedClientChatError(t *testing.T) {
	wantErr := errors.New("backend down")
	inner := &mockClient{chatErr: wantErr}
	oc := WrapClient(inner, testInstruments(t))

	_, err := oc.Chat(context.Background(), anuris.ChatRequest{})
	if !errors.Is(err, wantErr) {
		t.Errorf("Chat error = %v, want %v", err, wantErr)
	}
}
