package openaicompat

import (
	"encoding/json"
	"strings"

	anuris "github.com/anuris-ai/anuris"
)

// parseResponse normalizes a completion response into the tagged result
// record. Both plain string content and Anthropic-style content-block lists
// are accepted; inline think tags are extracted into reasoning.
func parseResponse(resp wireResponse) anuris.ChatResponse {
	var out anuris.ChatResponse

	switch {
	case len(resp.Choices) > 0 && resp.Choices[0].Message != nil:
		msg := resp.Choices[0].Message
		content, reasoning, toolCalls := parseContent(msg.Content)
		out.Content = content
		out.Reasoning = joinReasoning(msg.Reasoning, reasoning)
		out.ToolCalls = append(parseToolCalls(msg.ToolCalls), toolCalls...)
	case len(resp.Content) > 0:
		// Anthropic-native body: content blocks at the top level.
		content, reasoning, toolCalls := parseContent(resp.Content)
		out.Content = content
		out.Reasoning = reasoning
		out.ToolCalls = toolCalls
	}

	content, thought := ExtractThink(out.Content)
	out.Content = content
	out.Reasoning = joinReasoning(out.Reasoning, thought)
	return out
}

// parseContent decodes raw message content as either a string or a typed
// block list. Text blocks concatenate into content, thinking blocks into
// reasoning, tool_use blocks become tool calls.
func parseContent(raw json.RawMessage) (content, reasoning string, toolCalls []anuris.ToolCall) {
	if len(raw) == 0 {
		return "", "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, "", nil
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", "", nil
	}

	var contentBuf, reasoningBuf strings.Builder
	for _, block := range blocks {
		switch block.Type {
		case "text":
			contentBuf.WriteString(block.Text)
		case "thinking", "redacted_thinking":
			reasoningBuf.WriteString(block.Thinking)
		case "tool_use":
			args := block.Input
			if len(args) == 0 || !json.Valid(args) {
				args = json.RawMessage(`{}`)
			}
			toolCalls = append(toolCalls, anuris.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			})
		}
	}
	return contentBuf.String(), reasoningBuf.String(), toolCalls
}

func parseToolCalls(tcs []wireToolCall) []anuris.ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]anuris.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, anuris.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}

func joinReasoning(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "")
}
