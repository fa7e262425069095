package types

import (
	"encoding/json"
	"time"
)

// ToolSchema describes a tool's calling interface. Parameters holds a JSON
// Schema document; the sandbox validates arguments against it before any
// tool executes.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult represents the outcome of a single sandboxed tool invocation.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// ToMessage converts the result to a tool-role conversation message.
func (tr ToolResult) ToMessage() Message {
	content := string(tr.Result)
	if tr.Error != "" {
		content = "Error: " + tr.Error
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       tr.Name,
		ToolCallID: tr.ToolCallID,
	}
}

// IsError returns true if the tool invocation failed.
func (tr ToolResult) IsError() bool {
	return tr.Error != ""
}
