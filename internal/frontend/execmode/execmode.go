// Package execmode runs a single prompt without an interactive UI and
// serves the same loop to the MCP server.
package execmode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/codefionn/seeky/internal/agent"
	"github.com/codefionn/seeky/internal/logger"
	"github.com/codefionn/seeky/internal/mcp"
	"github.com/codefionn/seeky/internal/protocol"
)

// Options control where output goes and who answers approvals.
type Options struct {
	// Out receives agent messages.
	Out io.Writer
	// Err receives progress: commands, patches, tool calls, errors.
	Err      io.Writer
	Approver Approver
}

// Result summarizes one prompt.
type Result struct {
	LastMessage string
	Errors      []string
	Denied      []string
}

// Failed reports whether the task emitted an Error event.
func (r Result) Failed() bool { return len(r.Errors) > 0 }

// Run starts h, submits prompt and renders events until the task is
// complete, then shuts the session down. Cancelling ctx interrupts the
// task; the session still closes in order.
func Run(ctx context.Context, h *agent.Handle, prompt string, opts Options) (Result, error) {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Err == nil {
		opts.Err = io.Discard
	}
	if opts.Approver == nil {
		opts.Approver = DenyAll{}
	}
	log := logger.Global().WithPrefix("exec")

	events := h.Bus.Subscribe()
	h.Start(context.Background())

	taskID, err := h.Bus.Submit(protocol.UserInput{Items: []protocol.InputItem{protocol.TextItem{Text: prompt}}})
	if err != nil {
		return Result{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		log.Info("interrupting task %s", taskID)
		_, _ = h.Bus.Submit(protocol.Interrupt{})
	})
	defer stop()

	var res Result
	r := renderer{out: opts.Out, err: opts.Err}
	for {
		ev, err := events.Pop(context.Background())
		if err != nil {
			// The session closed before the task finished.
			return res, errors.Join(errors.New("session ended before the task completed"), h.Wait())
		}
		r.render(ev)
		if e, ok := ev.Msg.(protocol.Error); ok {
			res.Errors = append(res.Errors, e.Message)
		}
		if IsApprovalRequest(ev.Msg) {
			decision := opts.Approver.Review(ev)
			log.Info("request %s: %s", ev.ID, decision)
			if _, err := h.Bus.Submit(protocol.ApprovalDecision{ID: ev.ID, Decision: decision}); err != nil {
				log.Warn("submit decision for %s: %v", ev.ID, err)
			}
		}
		if done, ok := ev.Msg.(protocol.TaskComplete); ok && ev.ID == taskID {
			res.LastMessage = done.LastAgentMessage
			res.Denied = done.Denied
			break
		}
	}

	if _, err := h.Bus.Submit(protocol.Shutdown{}); err != nil {
		log.Debug("shutdown: %v", err)
	}
	for {
		if _, err := events.Pop(context.Background()); err != nil {
			break
		}
	}
	return res, h.Wait()
}

// PromptRunner serves the seeky MCP tool. Each call gets its own session
// and every approval request is denied.
func PromptRunner(a *agent.Agent) mcp.PromptRunner {
	return func(ctx context.Context, args mcp.RunArgs) (string, error) {
		policy, cwd, err := a.Scoped(agent.Overrides{FullAuto: args.FullAuto, Sandbox: args.Sandbox, Cwd: args.Cwd})
		if err != nil {
			return "", err
		}
		h, err := a.NewSessionIn(cwd, &policy)
		if err != nil {
			return "", err
		}
		res, err := Run(ctx, h, args.Prompt, Options{Approver: DenyAll{}})
		if err != nil {
			return "", err
		}
		if res.Failed() {
			return "", errors.New(strings.Join(res.Errors, "; "))
		}
		if len(res.Denied) > 0 {
			return fmt.Sprintf("%s\n\n(denied: %s)", res.LastMessage, strings.Join(res.Denied, ", ")), nil
		}
		return res.LastMessage, nil
	}
}
