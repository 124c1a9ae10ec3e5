package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolName is the single tool served by `seeky mcp`.
const ToolName = "seeky"

// RunArgs are the arguments of the seeky tool.
type RunArgs struct {
	Prompt   string `json:"prompt" jsonschema:"Task for the agent to carry out"`
	Sandbox  string `json:"sandbox,omitempty" jsonschema:"Sandbox mode: read-only, workspace-write or danger-full-access"`
	FullAuto bool   `json:"full_auto,omitempty" jsonschema:"Run without approval requests inside the full-auto sandbox"`
	Cwd      string `json:"cwd,omitempty" jsonschema:"Working directory for the session"`
}

// PromptRunner runs one prompt to completion and returns the final agent
// message.
type PromptRunner func(ctx context.Context, args RunArgs) (string, error)

// NewServer builds an MCP server exposing run as the seeky tool.
func NewServer(version string, run PromptRunner) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "seeky", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Run a coding agent session on a prompt. Shell commands and patches are checked by the exec policy and confined by the sandbox.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args RunArgs) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(args.Prompt) == "" {
			return toolError("Error: prompt cannot be empty"), nil, nil
		}
		text, err := run(ctx, args)
		if err != nil {
			return toolError(err.Error()), nil, nil
		}
		return toolResult(text, false), nil, nil
	})
	return server
}

// Serve runs the server over stdio until the client disconnects.
func Serve(ctx context.Context, version string, run PromptRunner) error {
	return NewServer(version, run).Run(ctx, &mcp.StdioTransport{})
}

func toolResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

func toolError(text string) *mcp.CallToolResult {
	return toolResult(text, true)
}
