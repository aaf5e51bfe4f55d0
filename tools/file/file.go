// Package file provides sandboxed read_file, write_file, and edit_file tools.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	anuris "github.com/anuris-ai/anuris"
	"github.com/anuris-ai/anuris/internal/workspace"
)

// maxReadBytes caps the content returned by read_file.
const maxReadBytes = 50000

// Tool provides file access confined to a workspace root.
type Tool struct {
	root      *workspace.Root
	writeEdit bool
}

// Option configures the file tool.
type Option func(*Tool)

// ReadOnly drops write_file and edit_file from the tool set. Used for
// Explore subagents and read-only teammates.
func ReadOnly() Option {
	return func(t *Tool) { t.writeEdit = false }
}

// New creates a file tool restricted to root. Write and edit are enabled
// unless ReadOnly is given.
func New(root *workspace.Root, opts ...Option) *Tool {
	t := &Tool{root: root, writeEdit: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Definitions() []anuris.ToolDefinition {
	defs := []anuris.ToolDefinition{{
		Name:        "read_file",
		Description: "Read a file from the workspace. Optionally limit the number of lines returned.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"},"limit":{"type":"integer","description":"Maximum number of lines to return"}},"required":["path"]}`),
	}}
	if t.writeEdit {
		defs = append(defs,
			anuris.ToolDefinition{
				Name:        "write_file",
				Description: "Write content to a file in the workspace. Creates parent directories if needed.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"},"content":{"type":"string","description":"Content to write"}},"required":["path","content"]}`),
			},
			anuris.ToolDefinition{
				Name:        "edit_file",
				Description: "Replace the first occurrence of old_text with new_text in a workspace file.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"},"old_text":{"type":"string","description":"Exact text to replace"},"new_text":{"type":"string","description":"Replacement text"}},"required":["path","old_text","new_text"]}`),
			},
		)
	}
	return defs
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (anuris.ToolResult, error) {
	var params struct {
		Path    string `json:"path"`
		Limit   int    `json:"limit"`
		Content string `json:"content"`
		OldText string `json:"old_text"`
		NewText string `json:"new_text"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return anuris.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	resolved, err := t.root.Resolve(params.Path)
	if err != nil {
		return anuris.ToolResult{Error: err.Error()}, nil
	}

	switch name {
	case "read_file":
		return t.read(resolved, params.Limit)
	case "write_file":
		if !t.writeEdit {
			return anuris.ToolResult{Error: "write_file is disabled"}, nil
		}
		return t.write(resolved, params.Path, params.Content)
	case "edit_file":
		if !t.writeEdit {
			return anuris.ToolResult{Error: "edit_file is disabled"}, nil
		}
		return t.edit(resolved, params.Path, params.OldText, params.NewText)
	default:
		return anuris.ToolResult{Error: "unknown file tool: " + name}, nil
	}
}

func (t *Tool) read(path string, limit int) (anuris.ToolResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return anuris.ToolResult{Error: err.Error()}, nil
	}
	content := strings.TrimSuffix(string(data), "\n")
	if limit > 0 {
		lines := strings.Split(content, "\n")
		if limit < len(lines) {
			kept := append(lines[:limit:limit], fmt.Sprintf("... (%d more lines)", len(lines)-limit))
			content = strings.Join(kept, "\n")
		}
	}
	if len(content) > maxReadBytes {
		content = content[:maxReadBytes]
	}
	return anuris.ToolResult{Content: content}, nil
}

func (t *Tool) write(path, display, content string) (anuris.ToolResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return anuris.ToolResult{Error: err.Error()}, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return anuris.ToolResult{Error: err.Error()}, nil
	}
	return anuris.ToolResult{Content: fmt.Sprintf("Wrote %d bytes to %s", len(content), display)}, nil
}

func (t *Tool) edit(path, display, oldText, newText string) (anuris.ToolResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return anuris.ToolResult{Error: err.Error()}, nil
	}
	content := string(data)
	if !strings.Contains(content, oldText) {
		return anuris.ToolResult{Error: fmt.Sprintf("Text not found in %s", display)}, nil
	}
	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return anuris.ToolResult{Error: err.Error()}, nil
	}
	return anuris.ToolResult{Content: fmt.Sprintf("Edited %s", display)}, nil
}
