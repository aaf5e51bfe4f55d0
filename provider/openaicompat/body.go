package openaicompat

import (
	"encoding/json"
	"strings"

	anuris "github.com/anuris-ai/anuris"
)

// buildBody converts a normalized ChatRequest into the wire request for one
// attempt. The DeepSeek thinking toggle is injected only for that family;
// gateways proxying a DeepSeek model do not get it.
func buildBody(req anuris.ChatRequest, model string, family Family, temperature *float64, reasoning bool) wireRequest {
	body := wireRequest{
		Model:       model,
		Messages:    buildMessages(req.Messages),
		Temperature: temperature,
	}

	if len(req.Tools) > 0 {
		body.Tools = buildTools(req.Tools)
		body.ToolChoice = req.ToolChoice
		if body.ToolChoice == "" {
			body.ToolChoice = "auto"
		}
	}

	if family == FamilyDeepSeek {
		mode := "disabled"
		if reasoning {
			mode = "enabled"
		}
		body.ExtraBody = map[string]any{
			"thinking": map[string]any{"type": mode},
		}
	}

	return body
}

func buildMessages(messages []anuris.ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		msg := wireMessage{Role: m.Role}

		if len(m.Blocks) > 0 {
			blocks := make([]anuris.ContentBlock, len(m.Blocks))
			copy(blocks, m.Blocks)
			msg.Content = blocks
		} else {
			msg.Content = m.Content
		}

		if m.Role == "assistant" {
			msg.Reasoning = m.Reasoning
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, wireToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: wireFunctionCall{
						Name:      tc.Name,
						Arguments: argumentsText(tc.Args),
					},
				})
			}
		}
		if m.Role == "tool" {
			msg.ToolCallID = m.ToolCallID
		}

		out = append(out, msg)
	}
	return out
}

func argumentsText(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	return string(args)
}

func buildTools(tools []anuris.ToolDefinition) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// NormalizeBaseURL appends /v1 to base URLs with an empty or root path and
// strips trailing slashes.
func NormalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return trimmed
	}
	rest := trimmed
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if !strings.Contains(rest, "/") {
		return trimmed + "/v1"
	}
	return trimmed
}

// DetectFamily classifies the endpoint by substring matching the base URL and
// model name. Gateways are detected before the models they proxy.
func DetectFamily(baseURL, model string) Family {
	b := strings.ToLower(baseURL)
	m := strings.ToLower(model)
	switch {
	case strings.Contains(b, "openrouter"):
		return FamilyOpenRouter
	case strings.Contains(b, "deepseek") || strings.Contains(m, "deepseek"):
		return FamilyDeepSeek
	case strings.Contains(b, "anthropic") || strings.Contains(m, "claude"):
		return FamilyAnthropic
	case strings.Contains(b, "openai") || strings.Contains(m, "gpt"):
		return FamilyOpenAI
	default:
		return FamilyGeneric
	}
}
