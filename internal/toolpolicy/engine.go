// Package toolpolicy decides whether an MCP tool call may run without
// asking, needs approval, or is refused outright.
package toolpolicy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

//go:embed default.rego
var DefaultPolicy string

// Action is the outcome of evaluating a tool call.
type Action string

const (
	Allow           Action = "allow"
	RequireApproval Action = "require_approval"
	Block           Action = "block"
)

type Decision struct {
	Action Action
	Reason string
}

// Input is the document the policy sees as `input`.
type Input struct {
	Server    string          `json:"server"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Engine evaluates data.tool_policy.decision against tool calls.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles policy. An empty policy selects DefaultPolicy.
func NewEngine(ctx context.Context, policy string) (*Engine, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	r := rego.New(
		rego.Query("data.tool_policy.decision"),
		rego.Module("tool_policy.rego", policy),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare tool policy: %w", err)
	}
	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy at path, or the default when path is
// empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, "")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool policy: %w", err)
	}
	return NewEngine(ctx, string(data))
}

// Evaluate returns the decision for in. Anything the policy does not
// answer clearly is treated as RequireApproval.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	doc := map[string]interface{}{
		"server": in.Server,
		"tool":   in.Tool,
	}
	if len(in.Arguments) > 0 {
		var args interface{}
		if err := json.Unmarshal(in.Arguments, &args); err != nil {
			return Decision{}, fmt.Errorf("tool arguments are not JSON: %w", err)
		}
		doc["arguments"] = args
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate tool policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Action: RequireApproval, Reason: "policy produced no decision"}, nil
	}

	switch v := results[0].Expressions[0].Value.(type) {
	case string:
		return normalize(Action(v), ""), nil
	case map[string]interface{}:
		action, _ := v["action"].(string)
		reason, _ := v["reason"].(string)
		return normalize(Action(action), reason), nil
	default:
		return Decision{Action: RequireApproval, Reason: "unexpected policy result"}, nil
	}
}

func normalize(a Action, reason string) Decision {
	switch a {
	case Allow, Block, RequireApproval:
		return Decision{Action: a, Reason: reason}
	default:
		return Decision{Action: RequireApproval, Reason: fmt.Sprintf("unknown policy action %q", a)}
	}
}
