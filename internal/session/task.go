package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/seeky/internal/llm"
	"github.com/codefionn/seeky/internal/logger"
	"github.com/codefionn/seeky/internal/protocol"
)

// task is one unit of work started by a UserInput. All of its events carry
// the submission id.
type task struct {
	s          *Session
	id         string
	transcript []llm.Message
	added      []llm.Message
	lastAgent  string
	denied     []string
}

func (t *task) emit(msg protocol.EventMsg) { t.s.emit(t.id, msg) }

func (t *task) record(msg llm.Message) {
	t.transcript = append(t.transcript, msg)
	t.added = append(t.added, msg)
}

func (t *task) run(ctx context.Context, input protocol.UserInput) {
	t.emit(protocol.TaskStarted{})
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task %s panicked: %v", t.id, r)
			t.emit(protocol.Error{Message: fmt.Sprintf("internal error: %v", r)})
		}
		t.s.appendHistory(t.added)
		t.emit(protocol.TaskComplete{LastAgentMessage: t.lastAgent, Denied: t.denied})
	}()

	t.record(llm.Message{Role: llm.RoleUser, Content: userText(input)})

	err := t.loop(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		t.emit(protocol.TurnAborted{Reason: context.Cause(ctx).Error()})
	default:
		t.s.log.Warn("task %s failed: %v", t.id, err)
		t.emit(protocol.Error{Message: err.Error()})
	}
}

func (t *task) loop(ctx context.Context) error {
	tools := t.s.toolSpecs()
	for turn := 0; turn < t.s.opts.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := t.s.opts.Model.Next(ctx, &llm.Request{
			System:   t.s.opts.SystemPrompt,
			Messages: t.transcript,
			Tools:    tools,
		})
		if err != nil {
			return fmt.Errorf("model: %w", err)
		}
		if resp.Reasoning != "" {
			t.emit(protocol.AgentReasoning{Text: resp.Reasoning})
		}
		if resp.Text != "" {
			t.lastAgent = resp.Text
			t.emit(protocol.AgentMessage{Message: resp.Text})
		}
		t.record(llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
		if len(resp.ToolCalls) == 0 {
			return nil
		}

		for _, call := range resp.ToolCalls {
			out, err := t.dispatch(ctx, call)
			if err != nil {
				return err
			}
			t.record(llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    out.text,
				IsError:    out.isError,
			})
		}
	}
	return fmt.Errorf("turn limit of %d reached", t.s.opts.MaxTurns)
}

// outcome is what the model sees for one tool call.
type outcome struct {
	text    string
	isError bool
}

func errorOutcome(format string, args ...any) outcome {
	return outcome{text: fmt.Sprintf(format, args...), isError: true}
}

// dispatch routes a tool call. The returned error ends the task; action
// failures are outcomes.
func (t *task) dispatch(ctx context.Context, call llm.ToolCall) (outcome, error) {
	switch call.Name {
	case shellTool:
		return t.execAction(ctx, call)
	case applyPatchTool:
		return t.patchAction(ctx, call)
	default:
		return t.toolAction(ctx, call)
	}
}

func (t *task) deny(callID string) {
	t.denied = append(t.denied, callID)
}

var errPlatform = errors.New("sandbox unavailable")

func userText(input protocol.UserInput) string {
	var parts []string
	for _, item := range input.Items {
		switch it := item.(type) {
		case protocol.TextItem:
			parts = append(parts, it.Text)
		case protocol.LocalImageItem:
			parts = append(parts, fmt.Sprintf("[image: %s]", it.Path))
		}
	}
	return strings.Join(parts, "\n")
}
