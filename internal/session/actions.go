package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/codefionn/seeky/internal/approval"
	"github.com/codefionn/seeky/internal/execpolicy"
	"github.com/codefionn/seeky/internal/execrun"
	"github.com/codefionn/seeky/internal/llm"
	"github.com/codefionn/seeky/internal/mcp"
	"github.com/codefionn/seeky/internal/patch"
	"github.com/codefionn/seeky/internal/protocol"
	"github.com/codefionn/seeky/internal/sandbox"
	"github.com/codefionn/seeky/internal/toolpolicy"
)

// ask opens a pending request, announces it under the request id and waits.
// A task that stops waiting withdraws its request.
func (t *task) ask(ctx context.Context, kind approval.Kind, key approval.Key, callID string, req protocol.EventMsg) protocol.ReviewDecision {
	p, err := t.s.gate.Open(kind, key, callID)
	if err != nil {
		t.s.log.Info("call %s: %v", callID, err)
		return protocol.DecisionDenied
	}
	t.s.emit(p.ID, req)
	decision := p.Wait(ctx)
	if ctx.Err() != nil {
		t.s.gate.Withdraw(p.ID)
	}
	t.s.log.Debug("call %s: request %s answered %s", callID, p.ID, decision)
	return decision
}

type shellArgs struct {
	Command   []string `json:"command"`
	Workdir   string   `json:"workdir,omitempty"`
	TimeoutMS int64    `json:"timeout_ms,omitempty"`
}

func (t *task) execAction(ctx context.Context, call llm.ToolCall) (outcome, error) {
	var args shellArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errorOutcome("invalid shell arguments: %v", err), nil
	}
	if len(args.Command) == 0 {
		return errorOutcome("shell requires a non-empty command"), nil
	}
	cwd := t.s.resolvePath(args.Workdir)
	callID := t.s.nextCallID()
	policy := t.s.opts.Policy

	match := t.s.opts.ExecPolicy.Evaluate(args.Command)
	key := approval.ExecKey(args.Command, cwd)
	t.s.log.Debug("call %s: %q classified %s by %q", callID, args.Command, match.Verdict, match.RuleID)

	switch {
	case match.Verdict == execpolicy.Safe:
	case t.s.gate.IsApprovedForSession(key):
	case !policy.AsksForApproval():
		if match.Verdict == execpolicy.Forbidden {
			t.deny(callID)
			return errorOutcome("command rejected: %s", verdictReason(match)), nil
		}
	default:
		decision := t.ask(ctx, approval.KindExec, key, callID, protocol.ExecApprovalRequest{
			CallID:  callID,
			Command: args.Command,
			Cwd:     cwd,
			Reason:  verdictReason(match),
		})
		if !decision.IsApproved() {
			t.deny(callID)
			return errorOutcome("the user denied running %s", strings.Join(args.Command, " ")), nil
		}
	}

	if policy.Confined() {
		if err := t.s.backendAvailable(); err != nil {
			return outcome{}, fmt.Errorf("%w: %v", errPlatform, err)
		}
	}

	timeout := t.s.opts.CommandTimeout
	if args.TimeoutMS > 0 {
		timeout = time.Duration(args.TimeoutMS) * time.Millisecond
	}

	t.emit(protocol.ExecCommandBegin{CallID: callID, Command: args.Command, Cwd: cwd})
	res, err := t.s.opts.Runner.Run(ctx, execrun.Request{
		CallID:  callID,
		Argv:    args.Command,
		Cwd:     cwd,
		Policy:  policy,
		Timeout: timeout,
	})
	if err != nil {
		t.emit(protocol.ExecCommandEnd{CallID: callID, ExitCode: -1, Stderr: err.Error()})
		if errors.Is(err, sandbox.ErrUnsupportedPlatform) {
			return outcome{}, fmt.Errorf("%w: %v", errPlatform, err)
		}
		return errorOutcome("failed to start command: %v", err), nil
	}
	t.emit(protocol.ExecCommandEnd{CallID: callID, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr})
	return outcome{text: formatExecOutput(res), isError: res.ExitCode != 0}, nil
}

type patchArgs struct {
	Patch string `json:"patch"`
}

func (t *task) patchAction(ctx context.Context, call llm.ToolCall) (outcome, error) {
	var args patchArgs
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return errorOutcome("invalid apply_patch arguments: %v", err), nil
	}
	p, err := patch.Parse(args.Patch, t.s.opts.Cwd)
	if err != nil {
		return errorOutcome("invalid patch: %v", err), nil
	}
	callID := t.s.nextCallID()
	policy := t.s.opts.Policy
	changes := p.Changes()
	grantRoot := p.GrantRoot()
	key := approval.PatchKey(grantRoot)

	autoApproved := patch.CanAutoApprove(p, policy) || t.s.gate.IsApprovedForSession(key)
	if !autoApproved {
		if !policy.AsksForApproval() {
			t.deny(callID)
			return errorOutcome("patch rejected: it writes outside the writable roots %v", policy.WritableRoots()), nil
		}
		decision := t.ask(ctx, approval.KindApplyPatch, key, callID, protocol.ApplyPatchApprovalRequest{
			CallID:    callID,
			Changes:   changes,
			Reason:    "the patch writes outside the writable roots",
			GrantRoot: grantRoot,
		})
		if !decision.IsApproved() {
			t.deny(callID)
			return errorOutcome("the user denied the patch"), nil
		}
	}

	t.emit(protocol.PatchApplyBegin{CallID: callID, AutoApproved: autoApproved, Changes: changes})
	res, err := patch.Apply(p)
	t.emit(protocol.PatchApplyEnd{CallID: callID, Stdout: res.Stdout, Stderr: res.Stderr, Success: err == nil})
	if err != nil {
		return errorOutcome("patch failed: %v", err), nil
	}
	return outcome{text: res.Stdout}, nil
}

func (t *task) toolAction(ctx context.Context, call llm.ToolCall) (outcome, error) {
	server, tool, ok := mcp.SplitQualifiedName(call.Name)
	if !ok || t.s.opts.Tools == nil {
		return errorOutcome("unknown tool %q", call.Name), nil
	}
	callID := t.s.nextCallID()
	key := approval.ToolKey(server, tool)

	decision := toolpolicy.Decision{Action: toolpolicy.RequireApproval, Reason: "tool calls require approval"}
	if t.s.opts.ToolPolicy != nil {
		d, err := t.s.opts.ToolPolicy.Evaluate(ctx, toolpolicy.Input{Server: server, Tool: tool, Arguments: call.Arguments})
		if err != nil {
			return errorOutcome("tool policy: %v", err), nil
		}
		decision = d
	}

	switch decision.Action {
	case toolpolicy.Allow:
	case toolpolicy.Block:
		t.deny(callID)
		return errorOutcome("tool call blocked: %s", decision.Reason), nil
	default:
		if t.s.gate.IsApprovedForSession(key) {
			break
		}
		if !t.s.opts.Policy.AsksForApproval() {
			t.deny(callID)
			return errorOutcome("tool call needs approval, which full-auto never asks for"), nil
		}
		review := t.ask(ctx, approval.KindToolCall, key, callID, protocol.McpToolCallApprovalRequest{
			CallID:    callID,
			Server:    server,
			Tool:      tool,
			Arguments: call.Arguments,
			Reason:    decision.Reason,
		})
		if !review.IsApproved() {
			t.deny(callID)
			return errorOutcome("the user denied calling %s", call.Name), nil
		}
	}

	t.emit(protocol.McpToolCallBegin{CallID: callID, Server: server, Tool: tool, Arguments: call.Arguments})
	res, err := t.s.opts.Tools.Call(ctx, server, tool, call.Arguments)
	if err != nil {
		t.emit(protocol.McpToolCallEnd{CallID: callID, Success: false, Result: err.Error()})
		return errorOutcome("tool call failed: %v", err), nil
	}
	t.emit(protocol.McpToolCallEnd{CallID: callID, Success: !res.IsError, Result: res.Text})
	return outcome{text: res.Text, isError: res.IsError}, nil
}

func (s *Session) resolvePath(p string) string {
	switch {
	case p == "":
		return s.opts.Cwd
	case filepath.IsAbs(p):
		return filepath.Clean(p)
	default:
		return filepath.Join(s.opts.Cwd, p)
	}
}

func (s *Session) backendAvailable() error {
	if s.opts.Backend == nil {
		return &sandbox.UnsupportedPlatformError{Backend: "none", GOOS: "unknown"}
	}
	return s.opts.Backend.Available()
}

func verdictReason(m execpolicy.Match) string {
	switch {
	case m.RuleID != "" && m.Reason != "":
		return fmt.Sprintf("%s (rule %s): %s", m.Verdict, m.RuleID, m.Reason)
	case m.RuleID != "":
		return fmt.Sprintf("%s (rule %s)", m.Verdict, m.RuleID)
	case m.Reason != "":
		return fmt.Sprintf("%s: %s", m.Verdict, m.Reason)
	}
	return m.Verdict.String()
}

func formatExecOutput(res execrun.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "exit code: %d\n", res.ExitCode)
	if res.Stdout != "" {
		b.WriteString("stdout:\n")
		b.WriteString(res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if res.Stderr != "" {
		b.WriteString("stderr:\n")
		b.WriteString(res.Stderr)
	}
	return b.String()
}
