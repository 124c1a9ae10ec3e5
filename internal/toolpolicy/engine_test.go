package toolpolicy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		in     Input
		action Action
	}{
		{"read tool allowed", Input{Server: "fs", Tool: "read_file"}, Allow},
		{"list tool allowed", Input{Server: "gh", Tool: "list_issues"}, Allow},
		{"destructive tool blocked", Input{Server: "gh", Tool: "delete_repository"}, Block},
		{"root path blocked", Input{Server: "fs", Tool: "read_file", Arguments: json.RawMessage(`{"path":"/"}`)}, Block},
		{"write tool asks", Input{Server: "fs", Tool: "write_file", Arguments: json.RawMessage(`{"path":"a.txt"}`)}, RequireApproval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Evaluate(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.action, d.Action)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestStringDecision(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, `
package tool_policy

default decision = "allow"

decision = "block" {
	input.tool == "nuke"
}
`)
	require.NoError(t, err)

	d, err := e.Evaluate(ctx, Input{Server: "x", Tool: "nuke"})
	require.NoError(t, err)
	assert.Equal(t, Block, d.Action)

	d, err = e.Evaluate(ctx, Input{Server: "x", Tool: "other"})
	require.NoError(t, err)
	assert.Equal(t, Allow, d.Action)
}

func TestUnknownActionNeedsApproval(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, "package tool_policy\n\ndecision = \"maybe\"\n")
	require.NoError(t, err)
	d, err := e.Evaluate(ctx, Input{Server: "x", Tool: "y"})
	require.NoError(t, err)
	assert.Equal(t, RequireApproval, d.Action)
}

func TestUndefinedDecisionNeedsApproval(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, "package tool_policy\n\ndecision = \"allow\" {\n\tinput.tool == \"never\"\n}\n")
	require.NoError(t, err)
	d, err := e.Evaluate(ctx, Input{Server: "x", Tool: "y"})
	require.NoError(t, err)
	assert.Equal(t, RequireApproval, d.Action)
}

func TestInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package tool_policy\n\ndecision = {")
	assert.Error(t, err)
}

func TestBadArguments(t *testing.T) {
	e, err := NewEngine(context.Background(), "")
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), Input{Server: "x", Tool: "y", Arguments: json.RawMessage(`{`)})
	assert.Error(t, err)
}

func TestEngineFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.rego")
	require.NoError(t, os.WriteFile(path, []byte("package tool_policy\n\ndefault decision = \"block\"\n"), 0o644))
	e, err := NewEngineFromFile(context.Background(), path)
	require.NoError(t, err)
	d, err := e.Evaluate(context.Background(), Input{Server: "x", Tool: "y"})
	require.NoError(t, err)
	assert.Equal(t, Block, d.Action)

	_, err = NewEngineFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}
