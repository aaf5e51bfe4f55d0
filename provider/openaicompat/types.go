// Package openaicompat implements the completion client for OpenAI-compatible
// chat endpoints. It normalizes base URLs, resolves proxies, detects the
// provider family for payload extras, retries rejected request shapes with a
// progressively reduced payload, and parses both OpenAI and Anthropic response
// shapes into the unified result types.
package openaicompat

import "encoding/json"

// Family identifies the provider behind an OpenAI-compatible endpoint. It is
// used only to decide provider-specific payload extras.
type Family string

const (
	FamilyOpenAI     Family = "openai"
	FamilyOpenRouter Family = "openrouter"
	FamilyDeepSeek   Family = "deepseek"
	FamilyAnthropic  Family = "anthropic"
	FamilyGeneric    Family = "generic"
)

// --- Request wire types ---

// wireRequest is the chat completions request body. ExtraBody entries are
// merged into the top level on marshal, matching SDK extra_body semantics.
type wireRequest struct {
	Model       string         `json:"model"`
	Messages    []wireMessage  `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Tools       []wireTool     `json:"tools,omitempty"`
	ToolChoice  string         `json:"tool_choice,omitempty"`
	ExtraBody   map[string]any `json:"-"`
}

func (r wireRequest) MarshalJSON() ([]byte, error) {
	type alias wireRequest
	base, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	if len(r.ExtraBody) == 0 {
		return base, nil
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.ExtraBody {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// wireMessage is one message on the wire. Content is either a string or a
// content-block list.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Reasoning  string         `json:"reasoning_content,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"` // always "function"
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// wireToolCall carries a tool call in request or response. Index is used
// during streaming to route argument fragments.
type wireToolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// --- Response wire types ---

// wireResponse is the non-streaming completion response.
type wireResponse struct {
	ID      string       `json:"id"`
	Choices []wireChoice `json:"choices"`
	// Anthropic-native responses carry content blocks at the top level.
	Type    string          `json:"type,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

type wireChoice struct {
	Index        int          `json:"index"`
	Message      *choiceBody  `json:"message,omitempty"`
	Delta        *choiceDelta `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// choiceBody is a completed choice message. Content stays raw because
// providers return either a string or a typed block list.
type choiceBody struct {
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Reasoning string          `json:"reasoning_content,omitempty"`
	ToolCalls []wireToolCall  `json:"tool_calls,omitempty"`
}

// choiceDelta is one OpenAI-style streaming delta.
type choiceDelta struct {
	Content          string            `json:"content,omitempty"`
	Reasoning        string            `json:"reasoning_content,omitempty"`
	ReasoningDetails []reasoningDetail `json:"reasoning_details,omitempty"`
	ToolCalls        []wireToolCall    `json:"tool_calls,omitempty"`
}

// reasoningDetail holds a running prefix of one reasoning lane; only the
// suffix beyond the previously seen prefix is new.
type reasoningDetail struct {
	Text string `json:"text"`
}

// contentBlock is one entry in an Anthropic-style content-block list.
type contentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

// streamFrame is one decoded streaming frame, covering both shapes. OpenAI
// chunks populate Choices; Anthropic events populate Type plus one of
// ContentBlock, Delta, Message.
type streamFrame struct {
	Choices      []wireChoice    `json:"choices,omitempty"`
	Type         string          `json:"type,omitempty"`
	Index        int             `json:"index,omitempty"`
	ContentBlock *contentBlock   `json:"content_block,omitempty"`
	Delta        *anthropicDelta `json:"delta,omitempty"`
	Message      *eventMessage   `json:"message,omitempty"`
}

type anthropicDelta struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type eventMessage struct {
	Content []contentBlock `json:"content,omitempty"`
}
