package anuris

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// scriptedClient replays canned responses and records every request.
type scriptedClient struct {
	responses []ChatResponse
	requests  []ChatRequest
}

func (c *scriptedClient) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return ChatResponse{Content: "done"}, nil
	}
	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return resp, nil
}

func (c *scriptedClient) Stream(context.Context, ChatRequest) (StreamResult, error) {
	return StreamResult{}, nil
}

func (c *scriptedClient) Name() string { return "scripted" }

func TestRunRejectsEmptyMessages(t *testing.T) {
	r := NewRunner(&scriptedClient{}, NewExecutor())
	_, err := r.Run(context.Background(), nil, nil, nil)
	if err == nil || err.Error() != "invalid messages format" {
		t.Fatalf("err = %v", err)
	}
}

func TestRunSingleRound(t *testing.T) {
	client := &scriptedClient{responses: []ChatResponse{{Content: "hello"}}}
	r := NewRunner(client, NewExecutor())

	result, err := r.Run(context.Background(), []ChatMessage{UserMessage("hi")}, nil, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.FinalText != "hello" || result.Rounds != 1 || len(result.ToolEvents) != 0 {
		t.Fatalf("result = %+v", result)
	}

	sent := client.requests[0].Messages
	if sent[0].Role != "system" {
		t.Errorf("first message role = %q, want system", sent[0].Role)
	}
	if sent[len(sent)-1].Content != "hi" {
		t.Errorf("last message = %q", sent[len(sent)-1].Content)
	}
}

func TestRunToolRoundPairsResults(t *testing.T) {
	client := &scriptedClient{responses: []ChatResponse{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "echo", Args: json.RawMessage(`{}`)}}},
		{Content: "all done"},
	}}
	echo := namedTool("echo", func(s *staticTool) { s.content = "pong" })
	r := NewRunner(client, NewExecutor(WithTools(echo)))

	var progress []string
	result, err := r.Run(context.Background(), []ChatMessage{UserMessage("go")}, nil, func(line string) {
		progress = append(progress, line)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.FinalText != "all done" || result.Rounds != 2 {
		t.Fatalf("result = %+v", result)
	}
	if len(result.ToolEvents) != 1 || result.ToolEvents[0] != "echo -> pong" {
		t.Fatalf("tool events = %v", result.ToolEvents)
	}

	second := client.requests[1].Messages
	assistant := second[len(second)-2]
	toolMsg := second[len(second)-1]
	if assistant.Role != "assistant" || len(assistant.ToolCalls) != 1 {
		t.Errorf("assistant message not carried: %+v", assistant)
	}
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_1" || toolMsg.Content != "pong" {
		t.Errorf("tool message = %+v", toolMsg)
	}

	joined := strings.Join(progress, "\n")
	for _, want := range []string{"[agent] round 1...", "[tool] echo -> pong", "[agent] round 2..."} {
		if !strings.Contains(joined, want) {
			t.Errorf("progress missing %q:\n%s", want, joined)
		}
	}
}

func TestRunUnknownToolFeedsErrorBack(t *testing.T) {
	client := &scriptedClient{responses: []ChatResponse{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "missing"}}},
		{Content: "recovered"},
	}}
	r := NewRunner(client, NewExecutor())

	result, err := r.Run(context.Background(), []ChatMessage{UserMessage("go")}, nil, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.FinalText != "recovered" {
		t.Fatalf("result = %+v", result)
	}
	second := client.requests[1].Messages
	toolMsg := second[len(second)-1]
	if toolMsg.Content != "Error: Unknown tool 'missing'" {
		t.Fatalf("tool message = %q", toolMsg.Content)
	}
}

func TestRunMaxRoundsExhaustion(t *testing.T) {
	client := &scriptedClient{responses: []ChatResponse{
		{ToolCalls: []ToolCall{{ID: "c", Name: "loop"}}},
	}}
	loop := namedTool("loop", func(s *staticTool) { s.content = "again" })
	r := NewRunner(client, NewExecutor(WithTools(loop)), WithMaxRounds(2))

	_, err := r.Run(context.Background(), []ChatMessage{UserMessage("go")}, nil, nil)
	var maxErr *ErrMaxRounds
	if !errors.As(err, &maxErr) {
		t.Fatalf("err = %v", err)
	}
	if err.Error() != "Agent loop exceeded max rounds (2)" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestRunInjectsBackgroundResults(t *testing.T) {
	bg := &fakeBackground{notifications: []BackgroundNotification{{
		TaskID: "ab12cd34", Status: "completed", Command: "make build", Result: "ok",
	}}}
	client := &scriptedClient{responses: []ChatResponse{{Content: "fine"}}}
	r := NewRunner(client, NewExecutor(WithBackground(bg)))

	if _, err := r.Run(context.Background(), []ChatMessage{UserMessage("hi")}, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	sent := client.requests[0].Messages
	var wrapper *ChatMessage
	for i := range sent {
		if strings.Contains(sent[i].Content, "<background-results>") {
			wrapper = &sent[i]
			break
		}
	}
	if wrapper == nil {
		t.Fatal("no background-results message sent")
	}
	if wrapper.Role != "user" {
		t.Errorf("wrapper role = %q, want user", wrapper.Role)
	}
	for _, want := range []string{"ab12cd34", "completed", "make build", "</background-results>"} {
		if !strings.Contains(wrapper.Content, want) {
			t.Errorf("wrapper missing %q:\n%s", want, wrapper.Content)
		}
	}
}

func TestRunFoldsAttachments(t *testing.T) {
	client := &scriptedClient{responses: []ChatResponse{{Content: "ok"}}}
	r := NewRunner(client, NewExecutor())

	attachments := []ContentBlock{ImageBlock("data:image/png;base64,AAAA")}
	if _, err := r.Run(context.Background(), []ChatMessage{UserMessage("look at this")}, attachments, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	sent := client.requests[0].Messages
	last := sent[len(sent)-1]
	if len(last.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(last.Blocks))
	}
	if last.Blocks[0].Type != "text" || last.Blocks[0].Text != "look at this" {
		t.Errorf("first block = %+v", last.Blocks[0])
	}
	if last.Blocks[1].Type != "image_url" {
		t.Errorf("second block = %+v", last.Blocks[1])
	}
}

func TestRunReasoningRetention(t *testing.T) {
	client := &scriptedClient{responses: []ChatResponse{
		{Reasoning: "thinking hard", ToolCalls: []ToolCall{{ID: "c1", Name: "echo"}}},
		{Content: "done"},
	}}
	echo := namedTool("echo", func(s *staticTool) { s.content = "pong" })
	r := NewRunner(client, NewExecutor(WithTools(echo)), WithRequireReasoning(true))

	if _, err := r.Run(context.Background(), []ChatMessage{UserMessage("go")}, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	second := client.requests[1].Messages
	assistant := second[len(second)-2]
	if assistant.Reasoning != "thinking hard" {
		t.Fatalf("reasoning = %q", assistant.Reasoning)
	}
}

func TestAgentInstructionReflectsCapabilities(t *testing.T) {
	r := NewRunner(&scriptedClient{}, NewExecutor(WithTodo(NewTodoManager())))
	instruction := r.agentInstruction()
	if !strings.Contains(instruction, "TodoWrite") {
		t.Errorf("instruction missing todo hint:\n%s", instruction)
	}
	if strings.Contains(instruction, "spawn_teammate") {
		t.Errorf("instruction mentions disabled team capability:\n%s", instruction)
	}
}

func TestResolvePromptSource(t *testing.T) {
	if got := ResolvePromptSource("just text"); got != "just text" {
		t.Fatalf("literal = %q", got)
	}
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("from file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ResolvePromptSource(path); got != "from file" {
		t.Fatalf("file = %q", got)
	}
}
