// Package protocol defines the messages exchanged between a front end and a
// session: Ops flow in, Events flow out. Both are closed sum types; a type
// switch over Op or EventMsg should carry a default branch only for
// UnknownEvent.
package protocol

import "encoding/json"

// Submission is one Op tagged with the id its Events will echo.
type Submission struct {
	ID string
	Op Op
}

// Op is a request from a front end into the session.
type Op interface {
	opType() string
}

// InputItem is one piece of user content.
type InputItem interface {
	itemType() string
}

// TextItem is plain user text.
type TextItem struct {
	Text string `json:"text"`
}

// LocalImageItem references an image file on the local disk.
type LocalImageItem struct {
	Path string `json:"path"`
}

func (TextItem) itemType() string       { return "text" }
func (LocalImageItem) itemType() string { return "local_image" }

// UserInput starts a new task from an ordered list of items.
type UserInput struct {
	Items []InputItem `json:"items"`
}

// ReviewDecision is the user's answer to an approval request.
type ReviewDecision string

const (
	DecisionApproved           ReviewDecision = "approved"
	DecisionApprovedForSession ReviewDecision = "approved_for_session"
	DecisionDenied             ReviewDecision = "denied"
)

// Valid reports whether d is one of the known decisions.
func (d ReviewDecision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionApprovedForSession, DecisionDenied:
		return true
	}
	return false
}

// IsApproved reports whether the gated action may run.
func (d ReviewDecision) IsApproved() bool {
	return d == DecisionApproved || d == DecisionApprovedForSession
}

// ApprovalDecision resolves the pending request whose approval event carried ID.
type ApprovalDecision struct {
	ID       string         `json:"id"`
	Decision ReviewDecision `json:"decision"`
}

// Interrupt aborts all running tasks without ending the session.
type Interrupt struct{}

// Shutdown ends the session.
type Shutdown struct{}

func (UserInput) opType() string        { return "user_input" }
func (ApprovalDecision) opType() string { return "approval_decision" }
func (Interrupt) opType() string        { return "interrupt" }
func (Shutdown) opType() string         { return "shutdown" }

// Event is a notification from the session. ID is empty for session-level
// events.
type Event struct {
	ID  string
	Msg EventMsg
}

// EventMsg is the payload of an Event.
type EventMsg interface {
	EventType() string
}

// FileChangeKind classifies one file in a patch.
type FileChangeKind string

const (
	ChangeAdd    FileChangeKind = "add"
	ChangeDelete FileChangeKind = "delete"
	ChangeUpdate FileChangeKind = "update"
)

// FileChange describes the effect of a patch on one path.
type FileChange struct {
	Kind        FileChangeKind `json:"kind"`
	Content     string         `json:"content,omitempty"`
	UnifiedDiff string         `json:"unified_diff,omitempty"`
	MovePath    string         `json:"move_path,omitempty"`
}

type SessionConfigured struct {
	SessionID     string `json:"session_id"`
	Model         string `json:"model"`
	Cwd           string `json:"cwd"`
	SandboxPolicy string `json:"sandbox_policy"`
}

type AgentMessage struct {
	Message string `json:"message"`
}

type AgentReasoning struct {
	Text string `json:"text"`
}

type TaskStarted struct{}

// TaskComplete closes a task. Denied lists the call ids of actions that were
// refused by the user or by policy.
type TaskComplete struct {
	LastAgentMessage string   `json:"last_agent_message,omitempty"`
	Denied           []string `json:"denied,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}

type TurnAborted struct {
	Reason string `json:"reason"`
}

type BackgroundEvent struct {
	Message string `json:"message"`
}

type ExecApprovalRequest struct {
	CallID  string   `json:"call_id"`
	Command []string `json:"command"`
	Cwd     string   `json:"cwd"`
	Reason  string   `json:"reason,omitempty"`
}

type ApplyPatchApprovalRequest struct {
	CallID    string                `json:"call_id"`
	Changes   map[string]FileChange `json:"changes"`
	Reason    string                `json:"reason,omitempty"`
	GrantRoot string                `json:"grant_root,omitempty"`
}

type McpToolCallApprovalRequest struct {
	CallID    string          `json:"call_id"`
	Server    string          `json:"server"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

type ExecCommandBegin struct {
	CallID  string   `json:"call_id"`
	Command []string `json:"command"`
	Cwd     string   `json:"cwd"`
}

type ExecCommandEnd struct {
	CallID   string `json:"call_id"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

type PatchApplyBegin struct {
	CallID       string                `json:"call_id"`
	AutoApproved bool                  `json:"auto_approved"`
	Changes      map[string]FileChange `json:"changes"`
}

type PatchApplyEnd struct {
	CallID  string `json:"call_id"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Success bool   `json:"success"`
}

type McpToolCallBegin struct {
	CallID    string          `json:"call_id"`
	Server    string          `json:"server"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type McpToolCallEnd struct {
	CallID  string `json:"call_id"`
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

type ShutdownComplete struct{}

// UnknownEvent carries an event type this build does not know. Front ends
// should render it as background noise.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (SessionConfigured) EventType() string          { return "session_configured" }
func (AgentMessage) EventType() string               { return "agent_message" }
func (AgentReasoning) EventType() string             { return "agent_reasoning" }
func (TaskStarted) EventType() string                { return "task_started" }
func (TaskComplete) EventType() string               { return "task_complete" }
func (Error) EventType() string                      { return "error" }
func (TurnAborted) EventType() string                { return "turn_aborted" }
func (BackgroundEvent) EventType() string            { return "background_event" }
func (ExecApprovalRequest) EventType() string        { return "exec_approval_request" }
func (ApplyPatchApprovalRequest) EventType() string  { return "apply_patch_approval_request" }
func (McpToolCallApprovalRequest) EventType() string { return "mcp_tool_call_approval_request" }
func (ExecCommandBegin) EventType() string           { return "exec_command_begin" }
func (ExecCommandEnd) EventType() string             { return "exec_command_end" }
func (PatchApplyBegin) EventType() string            { return "patch_apply_begin" }
func (PatchApplyEnd) EventType() string              { return "patch_apply_end" }
func (McpToolCallBegin) EventType() string           { return "mcp_tool_call_begin" }
func (McpToolCallEnd) EventType() string             { return "mcp_tool_call_end" }
func (ShutdownComplete) EventType() string           { return "shutdown_complete" }
func (u UnknownEvent) EventType() string             { return u.Type }

// CallID returns the call correlation key of begin/end events.
func CallID(msg EventMsg) (string, bool) {
	switch m := msg.(type) {
	case ExecCommandBegin:
		return m.CallID, true
	case ExecCommandEnd:
		return m.CallID, true
	case PatchApplyBegin:
		return m.CallID, true
	case PatchApplyEnd:
		return m.CallID, true
	case McpToolCallBegin:
		return m.CallID, true
	case McpToolCallEnd:
		return m.CallID, true
	}
	return "", false
}

// IsBegin reports whether msg opens a call.
func IsBegin(msg EventMsg) bool {
	switch msg.(type) {
	case ExecCommandBegin, PatchApplyBegin, McpToolCallBegin:
		return true
	}
	return false
}

// IsEnd reports whether msg closes a call.
func IsEnd(msg EventMsg) bool {
	switch msg.(type) {
	case ExecCommandEnd, PatchApplyEnd, McpToolCallEnd:
		return true
	}
	return false
}
