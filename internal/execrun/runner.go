// Package execrun spawns commands under a sandbox policy, captures their
// output and stops them cooperatively.
package execrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/codefionn/seeky/internal/logger"
	"github.com/codefionn/seeky/internal/sandbox"
)

const (
	defaultGrace     = 2 * time.Second
	defaultMaxOutput = 1 << 20
	timeoutExitCode  = 124
)

// Request is one command to run.
type Request struct {
	CallID  string
	Argv    []string
	Cwd     string
	Policy  sandbox.Policy
	Timeout time.Duration
}

// Result is the outcome of a command that was started. A non-zero exit is
// a Result, not an error.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Runner executes commands. Run returns an error only when the command
// could not be started at all.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// ProcessRunner runs commands as child processes in their own process group.
type ProcessRunner struct {
	backend   sandbox.Backend
	grace     time.Duration
	maxOutput int
	log       *logger.Logger
}

func NewProcessRunner(backend sandbox.Backend) *ProcessRunner {
	return &ProcessRunner{
		backend:   backend,
		grace:     defaultGrace,
		maxOutput: defaultMaxOutput,
		log:       logger.Global().WithPrefix("exec"),
	}
}

// WithGrace sets how long a terminated command may take to exit before the
// group is killed.
func (r *ProcessRunner) WithGrace(d time.Duration) *ProcessRunner {
	r.grace = d
	return r
}

// Run starts req and waits for it. When ctx ends or the timeout fires the
// process group receives SIGTERM, then SIGKILL after the grace period.
func (r *ProcessRunner) Run(ctx context.Context, req Request) (Result, error) {
	// The context is handled below; CommandContext would SIGKILL at once.
	cmd, err := sandbox.CommandFor(context.Background(), r.backend, req.Argv, req.Cwd, req.Policy)
	if err != nil {
		return Result{}, err
	}
	stdout := &cappedBuffer{limit: r.maxOutput}
	stderr := &cappedBuffer{limit: r.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.grace
	configureProcessGroup(cmd)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", req.Argv[0], err)
	}
	pgid := getProcessGroupID(cmd)
	r.log.Debug("call %s: started pid=%d pgid=%d %q", req.CallID, cmd.Process.Pid, pgid, req.Argv)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timerC <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-timerC:
		timedOut = true
		r.log.Warn("call %s: timed out after %s", req.CallID, req.Timeout)
		waitErr = r.terminate(cmd, pgid, done)
	case <-ctx.Done():
		r.log.Info("call %s: cancelled", req.CallID)
		waitErr = r.terminate(cmd, pgid, done)
	}

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: timedOut,
		Duration: time.Since(started),
	}
	res.ExitCode = exitCode(waitErr)
	if timedOut {
		res.ExitCode = timeoutExitCode
		res.Stderr += fmt.Sprintf("command timed out after %s\n", req.Timeout)
	}
	r.log.Debug("call %s: exit=%d in %s", req.CallID, res.ExitCode, res.Duration)
	return res, nil
}

func (r *ProcessRunner) terminate(cmd *exec.Cmd, pgid int, done <-chan error) error {
	if err := signalProcessGroup(pgid, "SIGTERM"); err != nil {
		_ = cmd.Process.Signal(terminateSignal)
	}
	select {
	case err := <-done:
		return err
	case <-time.After(r.grace):
	}
	if err := signalProcessGroup(pgid, "SIGKILL"); err != nil {
		_ = cmd.Process.Kill()
	}
	return <-done
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code, ok := signalExitCode(exitErr); ok {
			return code
		}
		return exitErr.ExitCode()
	}
	return -1
}

// cappedBuffer keeps the first limit bytes and counts the rest.
type cappedBuffer struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	limit   int
	dropped int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	switch {
	case room <= 0:
		b.dropped += len(p)
	case len(p) > room:
		b.buf.Write(p[:room])
		b.dropped += len(p) - room
	default:
		b.buf.Write(p)
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dropped == 0 {
		return b.buf.String()
	}
	return fmt.Sprintf("%s\n[... %d bytes truncated]\n", b.buf.String(), b.dropped)
}
