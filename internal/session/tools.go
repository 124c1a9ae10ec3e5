package session

import (
	"encoding/json"

	"github.com/codefionn/seeky/internal/llm"
)

const (
	shellTool      = "shell"
	applyPatchTool = "apply_patch"
)

// DefaultSystemPrompt tells the model which tools exist and how they are
// gated.
const DefaultSystemPrompt = `You are a coding agent working in the user's repository.
Use the shell tool to inspect and build the project and the apply_patch tool to edit files.
Commands run inside a sandbox. Some commands and every patch outside the writable roots
need the user's approval; if an action is denied, do not retry it unchanged.
When the task is finished, reply with a short summary and no tool calls.`

var builtinTools = []llm.ToolSpec{
	{
		Name:        shellTool,
		Description: "Run a command. command is the argv, not a shell string; wrap in [\"bash\", \"-lc\", script] for pipelines.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"workdir":    map[string]any{"type": "string", "description": "Working directory, relative to the session directory"},
				"timeout_ms": map[string]any{"type": "integer", "description": "Kill the command after this many milliseconds"},
			},
			"required": []string{"command"},
		},
	},
	{
		Name:        applyPatchTool,
		Description: "Apply a unified diff. Paths are relative to the session directory; use /dev/null to add or delete files.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patch": map[string]any{"type": "string"},
			},
			"required": []string{"patch"},
		},
	},
}

func (s *Session) toolSpecs() []llm.ToolSpec {
	specs := append([]llm.ToolSpec(nil), builtinTools...)
	if s.opts.Tools == nil {
		return specs
	}
	for _, t := range s.opts.Tools.Tools() {
		params := map[string]any{"type": "object"}
		if len(t.InputSchema) > 0 {
			var schema map[string]any
			if err := json.Unmarshal(t.InputSchema, &schema); err == nil {
				params = schema
			}
		}
		specs = append(specs, llm.ToolSpec{
			Name:        t.QualifiedName(),
			Description: t.Description,
			Parameters:  params,
		})
	}
	return specs
}
