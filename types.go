package anuris

import "encoding/json"

// --- LLM protocol types ---

// ChatMessage is one turn in a conversation. Content carries plain text;
// Blocks, when non-empty, replaces Content on the wire with a typed
// content-block list (multimodal user messages, attachment folding).
type ChatMessage struct {
	Role       string         `json:"role"` // "system", "user", "assistant", "tool"
	Content    string         `json:"content"`
	Blocks     []ContentBlock `json:"blocks,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	// Reasoning carries provider "reasoning_content" for assistant messages
	// when the client is configured to require it.
	Reasoning string `json:"reasoning_content,omitempty"`
}

// ContentBlock is a typed entry in a content-block list.
type ContentBlock struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL holds the URL (or base64 data URI) for an image content block.
type ImageURL struct {
	URL string `json:"url"`
}

// ToolCall is a structured function-invocation request emitted by the model.
// ID is unique within its assistant message. Args is the raw JSON object text.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ChatRequest is the provider-agnostic completion request.
type ChatRequest struct {
	Messages   []ChatMessage    `json:"messages"`
	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice string           `json:"tool_choice,omitempty"` // "auto" when Tools set
}

// ChatResponse is the normalized completion result: content, reasoning, and
// tool calls, regardless of which provider shape produced them.
type ChatResponse struct {
	Content   string     `json:"content"`
	Reasoning string     `json:"reasoning_content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// StreamResult is the accumulated output of a streamed completion.
// Interrupted is set when the consumer cancelled mid-stream; Content and
// Reasoning then hold whatever had arrived.
type StreamResult struct {
	Content     string `json:"content"`
	Reasoning   string `json:"reasoning_content,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`
}

// ToolDefinition describes one callable tool in JSON-Schema form.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// --- Session history (host persistence) ---

// Session is a persisted conversation owned by the host for the duration of
// a CLI session and reloadable across runs.
type Session struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt int64         `json:"created_at"`
	UpdatedAt int64         `json:"updated_at"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ImageBlock builds an image_url content block from a data URI or URL.
func ImageBlock(url string) ContentBlock {
	return ContentBlock{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}
