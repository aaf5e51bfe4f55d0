package anuris

import (
	"context"
	"encoding/json"
)

// Tool defines an agent capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution. A non-empty Error marks the
// content as an error message; the executor folds both cases into the plain
// string handed back to the model.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}
