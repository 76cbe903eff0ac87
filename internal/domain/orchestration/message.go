// Package orchestration defines the conversation and run-state types used by
// the claim processing engine.
package orchestration

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the turn history of an orchestration run.
// The history is append-only for the duration of a run.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a single normalized tool invocation requested by the model.
// Upstream responses carry tool calls in several historical shapes; adapters
// in wire.go translate each of them into this one type.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing one ToolCall.
// Never mutated after creation.
type ToolResult struct {
	CallID   string          `json:"call_id"`
	Tool     string          `json:"tool"`
	Output   json.RawMessage `json:"output,omitempty"`
	Err      string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// OK reports whether the tool executed successfully.
func (r *ToolResult) OK() bool { return r.Err == "" }

// Content renders the result as the text fed back into the conversation.
func (r *ToolResult) Content() string {
	if r.Err != "" {
		return "Tool execution failed: " + r.Err
	}
	return string(r.Output)
}
