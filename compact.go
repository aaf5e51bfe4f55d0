package anuris

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	defaultKeepRecentToolMessages = 3
	defaultCompactThresholdTokens = 50000

	// maxConversationDumpLen caps the serialized conversation handed to the
	// summarizer, keeping the compaction request itself within limits.
	maxConversationDumpLen = 120000
)

// Compactor implements two-level context management: micro-compact trims old
// tool outputs in place on every round, auto-compact replaces the whole
// conversation with a summary skeleton when the estimated size crosses the
// threshold. The full conversation is written to a transcript file before
// summarization so it survives summarizer failures.
type Compactor struct {
	client          CompletionClient
	transcriptDir   string
	keepRecentTools int
	thresholdTokens int
	logger          *slog.Logger
}

// CompactorOption configures a Compactor.
type CompactorOption func(*Compactor)

// WithKeepRecentTools sets how many recent tool messages micro-compact
// leaves intact. Default 3.
func WithKeepRecentTools(n int) CompactorOption {
	return func(c *Compactor) {
		if n > 0 {
			c.keepRecentTools = n
		}
	}
}

// WithCompactThreshold sets the estimated-token threshold for auto-compact.
// Default 50000.
func WithCompactThreshold(tokens int) CompactorOption {
	return func(c *Compactor) {
		if tokens > 0 {
			c.thresholdTokens = tokens
		}
	}
}

// WithCompactorLogger sets the logger. Nil falls back to a nop logger.
func WithCompactorLogger(l *slog.Logger) CompactorOption {
	return func(c *Compactor) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCompactor creates a compactor writing transcripts under transcriptDir.
func NewCompactor(client CompletionClient, transcriptDir string, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		client:          client,
		transcriptDir:   transcriptDir,
		keepRecentTools: defaultKeepRecentToolMessages,
		thresholdTokens: defaultCompactThresholdTokens,
		logger:          nopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EstimateTokens approximates the token count of a conversation as
// serialized JSON length divided by 4.
func EstimateTokens(messages []ChatMessage) int {
	data, err := json.Marshal(messages)
	if err != nil {
		return 0
	}
	return len(data) / 4
}

// ShouldAutoCompact reports whether the conversation exceeds the threshold.
func (c *Compactor) ShouldAutoCompact(messages []ChatMessage) bool {
	return EstimateTokens(messages) > c.thresholdTokens
}

// MicroCompact rewrites older large tool outputs in place, keeping the most
// recent keepRecentTools tool messages intact. Contents at or under 120
// characters are left alone.
func (c *Compactor) MicroCompact(messages []ChatMessage) {
	var toolIndices []int
	for i, m := range messages {
		if m.Role == "tool" {
			toolIndices = append(toolIndices, i)
		}
	}
	if len(toolIndices) <= c.keepRecentTools {
		return
	}

	for _, i := range toolIndices[:len(toolIndices)-c.keepRecentTools] {
		if len(messages[i].Content) > 120 {
			toolID := messages[i].ToolCallID
			if toolID == "" {
				toolID = "unknown"
			}
			messages[i].Content = fmt.Sprintf("[Previous tool output omitted: %s]", toolID)
		}
	}
}

// AutoCompact writes the full conversation as a JSONL transcript, asks the
// completion client for a summary, and returns the three-message skeleton
// that replaces the conversation. focus optionally steers the summary.
func (c *Compactor) AutoCompact(ctx context.Context, messages []ChatMessage, focus string) ([]ChatMessage, error) {
	if err := os.MkdirAll(c.transcriptDir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	transcriptPath := filepath.Join(c.transcriptDir, fmt.Sprintf("transcript_%d.jsonl", NowUnix()))

	// Transcript goes to disk before the summarization call so the original
	// conversation survives summarizer failures.
	f, err := os.Create(transcriptPath)
	if err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, m := range messages {
		if err := enc.Encode(m); err != nil {
			f.Close()
			return nil, fmt.Errorf("write transcript: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close transcript: %w", err)
	}

	systemMsg := SystemMessage("You are a coding assistant.")
	if len(messages) > 0 && messages[0].Role == "system" {
		systemMsg = messages[0]
	}

	dump, _ := json.Marshal(messages)
	conversation := string(dump)
	if len(conversation) > maxConversationDumpLen {
		conversation = conversation[:maxConversationDumpLen]
	}
	focusHint := ""
	if focus != "" {
		focusHint = "\nFocus: " + focus
	}
	summaryPrompt := "Summarize this conversation for continuity. " +
		"Include: completed work, current state, open decisions, and next actions." +
		focusHint + "\n\n" + conversation

	resp, err := c.client.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage("You summarize coding conversations faithfully and concisely."),
			UserMessage(summaryPrompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	summary := resp.Content
	if summary == "" {
		summary = "(summary unavailable)"
	}

	c.logger.Info("conversation compacted",
		"transcript", transcriptPath,
		"messages", len(messages))

	return []ChatMessage{
		systemMsg,
		UserMessage(fmt.Sprintf("[Conversation compacted. Transcript: %s]\n%s", transcriptPath, summary)),
		AssistantMessage("Understood. Continuing from compacted context."),
	}, nil
}
