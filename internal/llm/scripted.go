package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ScriptCall is a tool call in a script. Arguments is any YAML value that
// encodes to a JSON object.
type ScriptCall struct {
	ID        string `yaml:"id,omitempty"`
	Tool      string `yaml:"tool"`
	Arguments any    `yaml:"arguments,omitempty"`
}

// ScriptTurn is one canned response.
type ScriptTurn struct {
	Reasoning string       `yaml:"reasoning,omitempty"`
	Message   string       `yaml:"message,omitempty"`
	Calls     []ScriptCall `yaml:"calls,omitempty"`
}

type scriptFile struct {
	Model string       `yaml:"model"`
	Turns []ScriptTurn `yaml:"turns"`
}

// ScriptedModel replays a fixed list of turns. Once the script is spent
// every turn is a final message with no calls.
type ScriptedModel struct {
	name string

	mu       sync.Mutex
	turns    []ScriptTurn
	next     int
	requests []Request
}

func NewScriptedModel(turns ...ScriptTurn) *ScriptedModel {
	return &ScriptedModel{name: "scripted", turns: turns}
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (*ScriptedModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

func ParseScript(data []byte) (*ScriptedModel, error) {
	var f scriptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, turn := range f.Turns {
		for j, call := range turn.Calls {
			if call.Tool == "" {
				return nil, fmt.Errorf("turn %d call %d: missing tool", i, j)
			}
		}
	}
	m := NewScriptedModel(f.Turns...)
	if f.Model != "" {
		m.name = f.Model
	}
	return m, nil
}

func (m *ScriptedModel) Name() string { return m.name }

func (m *ScriptedModel) Next(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if req != nil {
		snapshot := *req
		snapshot.Messages = append([]Message(nil), req.Messages...)
		m.requests = append(m.requests, snapshot)
	}
	if m.next >= len(m.turns) {
		return &Response{Text: "Done.", StopReason: "end_turn"}, nil
	}
	idx := m.next
	turn := m.turns[idx]
	m.next++

	resp := &Response{Text: turn.Message, Reasoning: turn.Reasoning, StopReason: "end_turn"}
	for j, call := range turn.Calls {
		args, err := json.Marshal(call.Arguments)
		if err != nil {
			return nil, fmt.Errorf("turn %d call %d: arguments: %w", idx, j, err)
		}
		if call.Arguments == nil {
			args = json.RawMessage("{}")
		}
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d_%d", idx+1, j+1)
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: id, Name: call.Tool, Arguments: args})
	}
	if len(resp.ToolCalls) > 0 {
		resp.StopReason = "tool_use"
	}
	return resp, nil
}

// Requests returns copies of every request seen so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}
