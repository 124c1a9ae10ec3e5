// Package session runs one agent session: it consumes Ops from a bus,
// drives the model, gates every proposed action and reports Events.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codefionn/seeky/internal/approval"
	"github.com/codefionn/seeky/internal/execpolicy"
	"github.com/codefionn/seeky/internal/execrun"
	"github.com/codefionn/seeky/internal/llm"
	"github.com/codefionn/seeky/internal/logger"
	"github.com/codefionn/seeky/internal/mcp"
	"github.com/codefionn/seeky/internal/protocol"
	"github.com/codefionn/seeky/internal/sandbox"
	"github.com/codefionn/seeky/internal/toolpolicy"
)

const (
	defaultMaxTurns       = 50
	defaultCommandTimeout = 2 * time.Minute
)

var (
	errInterrupted = errors.New("interrupted")
	errShutdown    = errors.New("session shutting down")
)

// Classifier is a compiled rule set, possibly one that reloads itself.
type Classifier interface {
	Evaluate(argv []string) execpolicy.Match
}

// ToolCaller reaches external MCP tools.
type ToolCaller interface {
	Tools() []mcp.ToolInfo
	Call(ctx context.Context, server, tool string, args json.RawMessage) (mcp.CallResult, error)
}

// ToolDecider decides whether a tool call needs approval.
type ToolDecider interface {
	Evaluate(ctx context.Context, in toolpolicy.Input) (toolpolicy.Decision, error)
}

// Options wire a session to its collaborators. Model, ExecPolicy and
// Runner are required.
type Options struct {
	Cwd        string
	Policy     sandbox.Policy
	Backend    sandbox.Backend
	Model      llm.Model
	ExecPolicy Classifier
	Runner     execrun.Runner
	Tools      ToolCaller
	ToolPolicy ToolDecider

	SystemPrompt   string
	CommandTimeout time.Duration
	MaxTurns       int
}

// Session owns the approval gate and the tasks of one agent run.
type Session struct {
	id   string
	bus  *protocol.Bus
	gate *approval.Gate
	opts Options
	log  *logger.Logger

	callSeq atomic.Uint64

	mu      sync.Mutex
	tasks   map[string]context.CancelCauseFunc
	history []llm.Message
	wg      sync.WaitGroup
}

func New(bus *protocol.Bus, opts Options) (*Session, error) {
	if bus == nil {
		return nil, errors.New("session: nil bus")
	}
	if opts.Model == nil || opts.ExecPolicy == nil || opts.Runner == nil {
		return nil, errors.New("session: model, exec policy and runner are required")
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = defaultMaxTurns
	}
	id := uuid.NewString()
	return &Session{
		id:    id,
		bus:   bus,
		gate:  approval.NewGate(),
		opts:  opts,
		log:   logger.Global().WithPrefix("session " + id[:8]),
		tasks: make(map[string]context.CancelCauseFunc),
	}, nil
}

func (s *Session) ID() string { return s.id }

// Gate exposes the approval gate for diagnostics.
func (s *Session) Gate() *approval.Gate { return s.gate }

// Run processes submissions until Shutdown, until the inbound side of the
// bus closes, or until ctx ends. The event side is closed on return.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.emit("", protocol.SessionConfigured{
		SessionID:     s.id,
		Model:         s.opts.Model.Name(),
		Cwd:           s.opts.Cwd,
		SandboxPolicy: s.opts.Policy.String(),
	})
	s.log.Info("configured: model=%s cwd=%s sandbox=%s", s.opts.Model.Name(), s.opts.Cwd, s.opts.Policy)

	shutdownID := ""
	for {
		sub, err := s.bus.NextSubmission(ctx)
		if err != nil {
			s.log.Info("inbound closed: %v", err)
			break
		}
		if _, ok := sub.Op.(protocol.Shutdown); ok {
			shutdownID = sub.ID
			break
		}
		s.handle(ctx, sub)
	}
	s.shutdown(shutdownID)
	return nil
}

func (s *Session) handle(ctx context.Context, sub protocol.Submission) {
	switch op := sub.Op.(type) {
	case protocol.UserInput:
		s.startTask(ctx, sub.ID, op)
	case protocol.ApprovalDecision:
		s.resolve(op)
	case protocol.Interrupt:
		if n := s.cancelTasks(errInterrupted); n == 0 {
			s.emit(sub.ID, protocol.BackgroundEvent{Message: "nothing to interrupt"})
		}
	default:
		s.log.Warn("unsupported op %T in submission %s", op, sub.ID)
		s.emit(sub.ID, protocol.Error{Message: fmt.Sprintf("unsupported op %T", op)})
	}
}

func (s *Session) resolve(op protocol.ApprovalDecision) {
	err := s.gate.Resolve(op.ID, op.Decision)
	if err == nil {
		return
	}
	s.log.Warn("protocol anomaly: decision %q for request %q: %v", op.Decision, op.ID, err)
	var msg string
	switch {
	case errors.Is(err, approval.ErrAlreadyResolved):
		msg = fmt.Sprintf("approval request %s was already resolved", op.ID)
	case errors.Is(err, approval.ErrInvalidDecision):
		msg = fmt.Sprintf("invalid decision %q", op.Decision)
	default:
		msg = fmt.Sprintf("no pending approval request with id %s", op.ID)
	}
	s.emit(op.ID, protocol.Error{Message: msg})
}

func (s *Session) startTask(ctx context.Context, subID string, input protocol.UserInput) {
	taskCtx, cancel := context.WithCancelCause(ctx)

	s.mu.Lock()
	s.tasks[subID] = cancel
	history := append([]llm.Message(nil), s.history...)
	s.mu.Unlock()

	t := &task{
		s:          s,
		id:         subID,
		transcript: history,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.tasks, subID)
			s.mu.Unlock()
			cancel(nil)
		}()
		t.run(taskCtx, input)
	}()
}

func (s *Session) cancelTasks(cause error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.tasks {
		s.log.Info("cancelling task %s: %v", id, cause)
		cancel(cause)
	}
	return len(s.tasks)
}

// shutdown denies every pending request, stops the tasks, waits for them
// to report and only then closes the event side.
func (s *Session) shutdown(id string) {
	denied := s.gate.Close()
	s.cancelTasks(errShutdown)
	s.wg.Wait()
	s.log.Info("shutdown: %d pending requests denied, metrics=%v", denied, s.gate.GetMetrics())
	s.emit(id, protocol.ShutdownComplete{})
	s.bus.CloseSubmissions()
	s.bus.CloseEvents()
}

func (s *Session) appendHistory(msgs []llm.Message) {
	s.mu.Lock()
	s.history = append(s.history, msgs...)
	s.mu.Unlock()
}

func (s *Session) nextCallID() string {
	return "call_" + strconv.FormatUint(s.callSeq.Add(1), 10)
}

func (s *Session) emit(id string, msg protocol.EventMsg) {
	if err := s.bus.Emit(protocol.Event{ID: id, Msg: msg}); err != nil {
		s.log.Debug("dropping %s event: %v", msg.EventType(), err)
	}
}
