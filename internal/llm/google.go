package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

const defaultGoogleModel = "gemini-2.5-pro"

// GoogleModel drives a session through the Gemini API.
type GoogleModel struct {
	client    *genai.Client
	model     string
	maxTokens int
}

func NewGoogleModel(ctx context.Context, apiKey, modelName string, maxTokens int) (*GoogleModel, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("google model requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google GenAI client: %w", err)
	}
	return &GoogleModel{client: client, model: normalizeGoogleModelName(modelName), maxTokens: maxTokens}, nil
}

func (m *GoogleModel) Name() string { return m.model }

func (m *GoogleModel) Next(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("google request cannot be nil")
	}
	contents, err := convertMessagesToGenAI(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("google completion requires at least one message")
	}

	cfg := &genai.GenerateContentConfig{}
	if sys := strings.TrimSpace(req.System); sys != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if tools := convertToolsToGenAI(req.Tools); len(tools) > 0 {
		cfg.Tools = tools
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("google genai completion failed: %w", err)
	}
	return buildGoogleResponse(resp), nil
}

// convertMessagesToGenAI maps the transcript onto user and model turns.
// Function responses carry the function name, which is recovered from the
// call they answer.
func convertMessagesToGenAI(messages []Message) ([]*genai.Content, error) {
	names := make(map[string]string)
	contents := make([]*genai.Content, 0, len(messages))
	for idx, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := make(map[string]any)
				if len(strings.TrimSpace(string(call.Arguments))) > 0 {
					if err := json.Unmarshal(call.Arguments, &args); err != nil {
						return nil, fmt.Errorf("message %d: invalid function call arguments: %w", idx, err)
					}
				}
				part := genai.NewPartFromFunctionCall(call.Name, args)
				part.FunctionCall.ID = call.ID
				names[call.ID] = call.Name
				parts = append(parts, part)
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
		case RoleTool:
			name, ok := names[msg.ToolCallID]
			if !ok {
				return nil, fmt.Errorf("tool message at index %d answers unknown call %q", idx, msg.ToolCallID)
			}
			payload := map[string]any{"output": msg.Content}
			if msg.IsError {
				payload = map[string]any{"error": msg.Content}
			}
			part := genai.NewPartFromFunctionResponse(name, payload)
			part.FunctionResponse.ID = msg.ToolCallID
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		default:
			if msg.Content == "" {
				continue
			}
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return contents, nil
}

func convertToolsToGenAI(tools []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, spec := range tools {
		if strings.TrimSpace(spec.Name) == "" {
			continue
		}
		decl := &genai.FunctionDeclaration{Name: spec.Name, Description: spec.Description}
		if len(spec.Parameters) > 0 {
			decl.ParametersJsonSchema = spec.Parameters
		}
		decls = append(decls, decl)
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func buildGoogleResponse(resp *genai.GenerateContentResponse) *Response {
	if resp == nil || len(resp.Candidates) == 0 {
		out := &Response{}
		if resp != nil && resp.PromptFeedback != nil {
			out.StopReason = string(resp.PromptFeedback.BlockReason)
		}
		return out
	}
	candidate := resp.Candidates[0]
	out := &Response{StopReason: string(candidate.FinishReason)}
	if candidate.Content == nil {
		return out
	}

	var text, reasoning []string
	for i, part := range candidate.Content.Parts {
		switch {
		case part == nil:
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil || part.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("gemini_call_%d", i)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args})
		case part.Thought && part.Text != "":
			reasoning = append(reasoning, part.Text)
		case part.Text != "":
			text = append(text, part.Text)
		}
	}
	out.Text = strings.Join(text, "")
	out.Reasoning = strings.Join(reasoning, "\n")
	return out
}

func normalizeGoogleModelName(modelName string) string {
	trimmed := strings.TrimSpace(modelName)
	if trimmed == "" {
		trimmed = defaultGoogleModel
	}
	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "models/") || strings.HasPrefix(lowered, "publishers/") {
		return trimmed
	}
	return "models/" + trimmed
}
