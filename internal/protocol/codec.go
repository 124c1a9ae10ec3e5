package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type taggedHeader struct {
	Type string `json:"type"`
}

// withType splices a "type" member into the JSON object encoding of v.
func withType(typ string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(typ)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("%s: payload is not an object", typ)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func readType(raw []byte) (string, error) {
	var h taggedHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", err
	}
	if h.Type == "" {
		return "", fmt.Errorf("missing \"type\"")
	}
	return h.Type, nil
}

func decodeAs[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// MarshalInputItem encodes one user input item.
func MarshalInputItem(item InputItem) ([]byte, error) {
	return withType(item.itemType(), item)
}

// UnmarshalInputItem decodes one user input item.
func UnmarshalInputItem(raw []byte) (InputItem, error) {
	typ, err := readType(raw)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "text":
		return decodeAs[TextItem](raw)
	case "local_image":
		return decodeAs[LocalImageItem](raw)
	}
	return nil, fmt.Errorf("unknown input item type %q", typ)
}

func (u UserInput) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(u.Items))
	for _, item := range u.Items {
		raw, err := MarshalInputItem(item)
		if err != nil {
			return nil, err
		}
		items = append(items, raw)
	}
	return json.Marshal(struct {
		Items []json.RawMessage `json:"items"`
	}{items})
}

func (u *UserInput) UnmarshalJSON(data []byte) error {
	var wire struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	u.Items = make([]InputItem, 0, len(wire.Items))
	for i, raw := range wire.Items {
		item, err := UnmarshalInputItem(raw)
		if err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		u.Items = append(u.Items, item)
	}
	return nil
}

// MarshalOp encodes an Op with its "type" tag.
func MarshalOp(op Op) ([]byte, error) {
	if op == nil {
		return nil, fmt.Errorf("nil op")
	}
	return withType(op.opType(), op)
}

// UnmarshalOp decodes a tagged Op. Unknown op types are an error.
func UnmarshalOp(raw []byte) (Op, error) {
	typ, err := readType(raw)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "user_input":
		return decodeAs[UserInput](raw)
	case "approval_decision":
		d, err := decodeAs[ApprovalDecision](raw)
		if err != nil {
			return nil, err
		}
		if !d.Decision.Valid() {
			return nil, fmt.Errorf("unknown decision %q", d.Decision)
		}
		return d, nil
	case "interrupt":
		return Interrupt{}, nil
	case "shutdown":
		return Shutdown{}, nil
	}
	return nil, fmt.Errorf("unknown op type %q", typ)
}

type wireSubmission struct {
	ID string          `json:"id"`
	Op json.RawMessage `json:"op"`
}

func (s Submission) MarshalJSON() ([]byte, error) {
	op, err := MarshalOp(s.Op)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireSubmission{ID: s.ID, Op: op})
}

func (s *Submission) UnmarshalJSON(data []byte) error {
	var w wireSubmission
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Op) == 0 {
		return fmt.Errorf("submission without op")
	}
	op, err := UnmarshalOp(w.Op)
	if err != nil {
		return err
	}
	s.ID = w.ID
	s.Op = op
	return nil
}

var eventDecoders = map[string]func([]byte) (EventMsg, error){
	"session_configured":             decodeEvent[SessionConfigured],
	"agent_message":                  decodeEvent[AgentMessage],
	"agent_reasoning":                decodeEvent[AgentReasoning],
	"task_started":                   decodeEvent[TaskStarted],
	"task_complete":                  decodeEvent[TaskComplete],
	"error":                          decodeEvent[Error],
	"turn_aborted":                   decodeEvent[TurnAborted],
	"background_event":               decodeEvent[BackgroundEvent],
	"exec_approval_request":          decodeEvent[ExecApprovalRequest],
	"apply_patch_approval_request":   decodeEvent[ApplyPatchApprovalRequest],
	"mcp_tool_call_approval_request": decodeEvent[McpToolCallApprovalRequest],
	"exec_command_begin":             decodeEvent[ExecCommandBegin],
	"exec_command_end":               decodeEvent[ExecCommandEnd],
	"patch_apply_begin":              decodeEvent[PatchApplyBegin],
	"patch_apply_end":                decodeEvent[PatchApplyEnd],
	"mcp_tool_call_begin":            decodeEvent[McpToolCallBegin],
	"mcp_tool_call_end":              decodeEvent[McpToolCallEnd],
	"shutdown_complete":              decodeEvent[ShutdownComplete],
}

func decodeEvent[T EventMsg](raw []byte) (EventMsg, error) {
	return decodeAs[T](raw)
}

// MarshalEventMsg encodes an event payload with its "type" tag.
func MarshalEventMsg(msg EventMsg) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil event")
	}
	if u, ok := msg.(UnknownEvent); ok {
		if len(u.Raw) > 0 {
			return u.Raw, nil
		}
		return withType(u.Type, struct{}{})
	}
	return withType(msg.EventType(), msg)
}

// UnmarshalEventMsg decodes a tagged payload. Types this build does not know
// come back as UnknownEvent rather than an error.
func UnmarshalEventMsg(raw []byte) (EventMsg, error) {
	typ, err := readType(raw)
	if err != nil {
		return nil, err
	}
	dec, ok := eventDecoders[typ]
	if !ok {
		return UnknownEvent{Type: typ, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	return dec(raw)
}

type wireEvent struct {
	ID  string          `json:"id,omitempty"`
	Msg json.RawMessage `json:"msg"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	msg, err := MarshalEventMsg(e.Msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{ID: e.ID, Msg: msg})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Msg) == 0 {
		return fmt.Errorf("event without msg")
	}
	msg, err := UnmarshalEventMsg(w.Msg)
	if err != nil {
		return err
	}
	e.ID = w.ID
	e.Msg = msg
	return nil
}
