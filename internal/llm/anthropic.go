package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5"
	defaultAnthropicMaxTokens = 8192
)

// AnthropicModel drives a session through the Messages API.
type AnthropicModel struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicModel creates a model backed by the official SDK. Extra
// options are passed to the client.
func NewAnthropicModel(apiKey, modelName string, maxTokens int, opts ...option.RequestOption) (*AnthropicModel, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic model requires an API key")
	}

	model := strings.TrimSpace(modelName)
	if model == "" {
		model = defaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	opts = append([]option.RequestOption{option.WithAPIKey(key)}, opts...)
	return &AnthropicModel{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (m *AnthropicModel) Name() string { return m.model }

func (m *AnthropicModel) Next(ctx context.Context, req *Request) (*Response, error) {
	params, err := m.buildMessageParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}
	return buildAnthropicResponse(msg), nil
}

func (m *AnthropicModel) buildMessageParams(req *Request) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic request cannot be nil")
	}

	messages, err := convertMessagesToAnthropic(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic completion requires at least one user or assistant message")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if sys := strings.TrimSpace(req.System); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}
	return params, nil
}

// convertMessagesToAnthropic folds consecutive tool results into a single
// user message as the API requires.
func convertMessagesToAnthropic(messages []Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) == 0 {
			return
		}
		out = append(out, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: pendingResults,
		})
		pendingResults = nil
	}

	for idx, msg := range messages {
		switch msg.Role {
		case RoleTool:
			if strings.TrimSpace(msg.ToolCallID) == "" {
				return nil, fmt.Errorf("tool message at index %d has no call id", idx)
			}
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
		case RoleAssistant:
			flush()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for i, call := range msg.ToolCalls {
				if strings.TrimSpace(call.Name) == "" {
					return nil, fmt.Errorf("tool call %d in message %d is missing a name", i, idx)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, parseToolArguments(call.Arguments), call.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})
		default:
			flush()
			if msg.Content == "" {
				continue
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
			})
		}
	}
	flush()
	return out, nil
}

func convertAnthropicTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, spec := range tools {
		if strings.TrimSpace(spec.Name) == "" {
			continue
		}

		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := spec.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if req := extractStringSlice(spec.Parameters["required"]); len(req) > 0 {
			schema.Required = req
		}
		if extras := copyExtraFields(spec.Parameters, "type", "properties", "required"); len(extras) > 0 {
			schema.ExtraFields = extras
		}

		tool := &anthropic.ToolParam{
			Name:        spec.Name,
			InputSchema: schema,
			Type:        anthropic.ToolTypeCustom,
		}
		if desc := strings.TrimSpace(spec.Description); desc != "" {
			tool.Description = anthropic.String(desc)
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: tool})
	}
	return result
}

func buildAnthropicResponse(msg *anthropic.Message) *Response {
	if msg == nil {
		return &Response{}
	}

	resp := &Response{StopReason: string(msg.StopReason)}
	var text, reasoning []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "thinking":
			reasoning = append(reasoning, block.Thinking)
		case "tool_use":
			args := json.RawMessage("{}")
			if len(block.Input) > 0 {
				args = append(json.RawMessage(nil), block.Input...)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	resp.Text = strings.Join(text, "\n")
	resp.Reasoning = strings.Join(reasoning, "\n")
	return resp
}

func parseToolArguments(raw json.RawMessage) any {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]interface{}{}
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return map[string]interface{}{}
	}
	return decoded
}

func extractStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok && str != "" {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}

func copyExtraFields(src map[string]any, skip ...string) map[string]any {
	if len(src) == 0 {
		return nil
	}
	skipSet := make(map[string]struct{}, len(skip))
	for _, key := range skip {
		skipSet[key] = struct{}{}
	}
	extras := make(map[string]any)
	for key, val := range src {
		if _, ok := skipSet[key]; !ok {
			extras[key] = val
		}
	}
	if len(extras) == 0 {
		return nil
	}
	return extras
}
