// Package llm holds the model abstraction the session drives and its
// implementations.
package llm

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one action requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one transcript entry. Tool messages answer the call named by
// ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// ToolSpec advertises a tool with a JSON schema for its arguments.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is everything the model sees for one turn.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// Response is the model's answer for one turn. No tool calls means the
// task is finished.
type Response struct {
	Text       string
	Reasoning  string
	ToolCalls  []ToolCall
	StopReason string
}

// Model produces the next turn of a conversation.
type Model interface {
	Name() string
	Next(ctx context.Context, req *Request) (*Response, error)
}
