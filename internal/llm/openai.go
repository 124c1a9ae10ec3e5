package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-5.1-codex"

// OpenAIModel drives a session through the Responses API.
type OpenAIModel struct {
	client    openai.Client
	model     string
	maxTokens int
}

func NewOpenAIModel(apiKey, modelName string, maxTokens int, opts ...option.RequestOption) (*OpenAIModel, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("openai model requires an API key")
	}
	model := strings.TrimSpace(modelName)
	if model == "" {
		model = defaultOpenAIModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(key)}, opts...)
	return &OpenAIModel{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (m *OpenAIModel) Name() string { return m.model }

func (m *OpenAIModel) Next(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("openai request cannot be nil")
	}
	input := buildResponsesInput(req.Messages)
	if len(input) == 0 {
		return nil, fmt.Errorf("openai completion requires at least one message")
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(m.model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	if sys := strings.TrimSpace(req.System); sys != "" {
		params.Instructions = openai.String(sys)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}
	if maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(maxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertResponsesTools(req.Tools)
	}

	resp, err := m.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	return buildResponsesResponse(resp), nil
}

func buildResponsesInput(messages []Message) responses.ResponseInputParam {
	input := make(responses.ResponseInputParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleTool:
			if msg.ToolCallID == "" {
				continue
			}
			input = append(input, responses.ResponseInputItemParamOfFunctionCallOutput(msg.ToolCallID, msg.Content))
		case RoleAssistant:
			if strings.TrimSpace(msg.Content) != "" {
				input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, call := range msg.ToolCalls {
				args := string(call.Arguments)
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				input = append(input, responses.ResponseInputItemParamOfFunctionCall(args, call.ID, call.Name))
			}
		default:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
		}
	}
	return input
}

func convertResponsesTools(tools []ToolSpec) []responses.ToolUnionParam {
	result := make([]responses.ToolUnionParam, 0, len(tools))
	for _, spec := range tools {
		if strings.TrimSpace(spec.Name) == "" {
			continue
		}
		variant := responses.ToolParamOfFunction(spec.Name, spec.Parameters, false)
		if desc := strings.TrimSpace(spec.Description); desc != "" && variant.OfFunction != nil {
			variant.OfFunction.Description = openai.String(desc)
		}
		result = append(result, variant)
	}
	return result
}

func buildResponsesResponse(resp *responses.Response) *Response {
	if resp == nil {
		return &Response{}
	}
	out := &Response{
		Text:       resp.OutputText(),
		StopReason: string(resp.Status),
	}
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		call := item.AsFunctionCall()
		id := call.CallID
		if id == "" {
			id = call.ID
		}
		args := call.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: call.Name, Arguments: []byte(args)})
	}
	return out
}
