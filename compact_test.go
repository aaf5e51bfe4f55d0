package anuris

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// summarizerClient returns a fixed summary for every Chat call.
type summarizerClient struct {
	summary  string
	requests []ChatRequest
}

func (c *summarizerClient) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	c.requests = append(c.requests, req)
	return ChatResponse{Content: c.summary}, nil
}

func (c *summarizerClient) Stream(context.Context, ChatRequest) (StreamResult, error) {
	return StreamResult{}, nil
}

func (c *summarizerClient) Name() string { return "summarizer" }

func TestMicroCompactKeepsRecentToolOutputs(t *testing.T) {
	c := NewCompactor(&summarizerClient{}, t.TempDir())
	long := strings.Repeat("x", 200)

	messages := []ChatMessage{
		SystemMessage("sys"),
		ToolResultMessage("call_1", long),
		ToolResultMessage("call_2", "short"),
		ToolResultMessage("call_3", long),
		ToolResultMessage("call_4", long),
		ToolResultMessage("call_5", long),
	}
	c.MicroCompact(messages)

	if messages[1].Content != "[Previous tool output omitted: call_1]" {
		t.Errorf("oldest long output not omitted: %q", messages[1].Content)
	}
	if messages[2].Content != "short" {
		t.Errorf("short output rewritten: %q", messages[2].Content)
	}
	for i := 3; i <= 5; i++ {
		if messages[i].Content != long {
			t.Errorf("recent tool message %d rewritten", i)
		}
	}
}

func TestMicroCompactUnknownToolID(t *testing.T) {
	c := NewCompactor(&summarizerClient{}, t.TempDir(), WithKeepRecentTools(1))
	long := strings.Repeat("y", 121)
	messages := []ChatMessage{
		{Role: "tool", Content: long},
		ToolResultMessage("call_2", long),
	}
	c.MicroCompact(messages)
	if messages[0].Content != "[Previous tool output omitted: unknown]" {
		t.Fatalf("got %q", messages[0].Content)
	}
}

func TestShouldAutoCompactThreshold(t *testing.T) {
	c := NewCompactor(&summarizerClient{}, t.TempDir(), WithCompactThreshold(10))
	small := []ChatMessage{UserMessage("hi")}
	if c.ShouldAutoCompact(small) {
		t.Error("small conversation should not trigger auto-compact")
	}
	big := []ChatMessage{UserMessage(strings.Repeat("z", 200))}
	if !c.ShouldAutoCompact(big) {
		t.Error("large conversation should trigger auto-compact")
	}
}

func TestAutoCompactWritesTranscriptAndSkeleton(t *testing.T) {
	dir := t.TempDir()
	client := &summarizerClient{summary: "did things, next do more"}
	c := NewCompactor(client, dir)

	messages := []ChatMessage{
		SystemMessage("original system"),
		UserMessage("build the thing"),
		AssistantMessage("done"),
	}
	compacted, err := c.AutoCompact(context.Background(), messages, "")
	if err != nil {
		t.Fatalf("auto-compact: %v", err)
	}

	if len(compacted) != 3 {
		t.Fatalf("skeleton has %d messages, want 3", len(compacted))
	}
	if compacted[0].Content != "original system" {
		t.Errorf("system message not preserved: %q", compacted[0].Content)
	}
	if !strings.Contains(compacted[1].Content, "[Conversation compacted. Transcript: ") {
		t.Errorf("missing transcript marker: %q", compacted[1].Content)
	}
	if !strings.Contains(compacted[1].Content, "did things, next do more") {
		t.Errorf("missing summary: %q", compacted[1].Content)
	}
	if compacted[2].Content != "Understood. Continuing from compacted context." {
		t.Errorf("ack = %q", compacted[2].Content)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("transcript dir entries = %d, err %v", len(entries), err)
	}
	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("open transcript: %v", err)
	}
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != len(messages) {
		t.Errorf("transcript has %d lines, want %d", lines, len(messages))
	}
}

func TestAutoCompactEmptySummary(t *testing.T) {
	c := NewCompactor(&summarizerClient{summary: ""}, t.TempDir())
	compacted, err := c.AutoCompact(context.Background(), []ChatMessage{UserMessage("hi")}, "")
	if err != nil {
		t.Fatalf("auto-compact: %v", err)
	}
	if !strings.Contains(compacted[1].Content, "(summary unavailable)") {
		t.Fatalf("missing placeholder: %q", compacted[1].Content)
	}
}

func TestAutoCompactFocusReachesSummarizer(t *testing.T) {
	client := &summarizerClient{summary: "s"}
	c := NewCompactor(client, t.TempDir())
	if _, err := c.AutoCompact(context.Background(), []ChatMessage{UserMessage("hi")}, "the parser"); err != nil {
		t.Fatalf("auto-compact: %v", err)
	}
	if len(client.requests) != 1 {
		t.Fatalf("summarizer calls = %d", len(client.requests))
	}
	prompt := client.requests[0].Messages[1].Content
	if !strings.Contains(prompt, "Focus: the parser") {
		t.Errorf("focus hint missing from prompt")
	}
}
