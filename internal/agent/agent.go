// Package agent assembles sessions from configuration and command-line
// overrides. Front ends create one Agent and any number of sessions.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/codefionn/seeky/internal/config"
	"github.com/codefionn/seeky/internal/execpolicy"
	"github.com/codefionn/seeky/internal/execrun"
	"github.com/codefionn/seeky/internal/journal"
	"github.com/codefionn/seeky/internal/llm"
	"github.com/codefionn/seeky/internal/logger"
	"github.com/codefionn/seeky/internal/mcp"
	"github.com/codefionn/seeky/internal/protocol"
	"github.com/codefionn/seeky/internal/redact"
	"github.com/codefionn/seeky/internal/sandbox"
	"github.com/codefionn/seeky/internal/session"
	"github.com/codefionn/seeky/internal/toolpolicy"
)

// Overrides are command-line flags layered over the config file.
type Overrides struct {
	FullAuto bool
	Sandbox  string
	Model    string
	Cwd      string
}

// Agent holds what sessions share: policies, the model, MCP connections
// and the journal.
type Agent struct {
	Cwd     string
	Policy  sandbox.Policy
	Backend sandbox.Backend

	cfg        *config.Config
	overrides  Overrides
	model      llm.Model
	execPolicy session.Classifier
	livePolicy *execpolicy.LivePolicy
	toolPolicy *toolpolicy.Engine
	tools      *mcp.Manager
	journal    *journal.Journal
	log        *logger.Logger

	wg sync.WaitGroup
}

// ResolvePolicy applies the sandbox selection rules to the flags and the
// configured default mode.
func ResolvePolicy(cfg *config.Config, ov Overrides, cwd string) (sandbox.Policy, error) {
	modeName := ov.Sandbox
	if modeName == "" {
		modeName = cfg.Sandbox.Mode
	}
	var explicit *sandbox.Mode
	if modeName != "" {
		m, err := sandbox.ParseMode(modeName)
		if err != nil {
			return sandbox.Policy{}, err
		}
		explicit = &m
	}
	return sandbox.Select(ov.FullAuto, explicit).
		WithGrantRoot(cwd).
		WithExtraPaths(cfg.Sandbox.AdditionalReadOnlyPaths, cfg.Sandbox.AdditionalReadWritePaths), nil
}

// New loads every collaborator named by cfg. Configuration errors are
// fatal; MCP servers that fail to start are logged and skipped.
func New(ctx context.Context, cfg *config.Config, ov Overrides, version string) (*Agent, error) {
	log := logger.Global().WithPrefix("agent")

	cwd := ov.Cwd
	if cwd == "" {
		cwd = cfg.WorkingDir
	}
	cwd, err := filepath.Abs(cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("working directory %s is not a directory", cwd)
	}

	policy, err := ResolvePolicy(cfg, ov, cwd)
	if err != nil {
		return nil, err
	}

	var execPolicy session.Classifier
	var livePolicy *execpolicy.LivePolicy
	if cfg.PolicyPath != "" {
		livePolicy, err = execpolicy.WatchPolicyFile(cfg.PolicyPath)
		execPolicy = livePolicy
	} else {
		execPolicy, err = execpolicy.GetDefaultPolicy()
	}
	if err != nil {
		return nil, fmt.Errorf("exec policy: %w", err)
	}
	ready := false
	defer func() {
		if !ready && livePolicy != nil {
			_ = livePolicy.Close()
		}
	}()

	toolPolicy, err := toolpolicy.NewEngineFromFile(ctx, cfg.ToolPolicyPath)
	if err != nil {
		return nil, err
	}

	mc := cfg.Model
	if ov.Model != "" {
		mc.Name = ov.Model
	}
	model, err := llm.FromConfig(mc)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		Cwd:        cwd,
		Policy:     policy,
		Backend:    sandbox.ForHost(sandbox.Options{BestEffort: cfg.Sandbox.BestEffort}),
		cfg:        cfg,
		overrides:  ov,
		model:      model,
		execPolicy: execPolicy,
		livePolicy: livePolicy,
		toolPolicy: toolPolicy,
		log:        log,
	}

	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		j.SetRedactor(redact.New().WithValues(os.Getenv(llm.KeyEnv(mc))))
		a.journal = j
	}

	if len(cfg.EnabledServers()) > 0 {
		a.tools = mcp.NewManager(version)
		for _, err := range a.tools.ConnectConfigured(ctx, cfg) {
			log.Warn("mcp: %v", err)
		}
	}

	ready = true
	log.Info("ready: cwd=%s sandbox=%s backend=%s model=%s", cwd, policy, a.Backend.Name(), model.Name())
	return a, nil
}

// NewWithOptions wraps preassembled collaborators; used by tests and by
// callers that build their own model.
func NewWithOptions(cwd string, policy sandbox.Policy, backend sandbox.Backend, model llm.Model, execPolicy *execpolicy.Policy) *Agent {
	return &Agent{
		Cwd:        cwd,
		Policy:     policy,
		Backend:    backend,
		cfg:        config.DefaultConfig(),
		model:      model,
		execPolicy: execPolicy,
		log:        logger.Global().WithPrefix("agent"),
	}
}

// Handle is one session with its bus. Subscribe before Start to see the
// whole event stream.
type Handle struct {
	Bus     *protocol.Bus
	Session *session.Session

	done chan struct{}
	err  error
}

// NewSession creates a session that has not started yet. policy replaces
// the agent's policy when non-nil.
func (a *Agent) NewSession(policy *sandbox.Policy) (*Handle, error) {
	return a.NewSessionIn(a.Cwd, policy)
}

// Scoped resolves the working directory and policy for a session that
// overrides some of the agent defaults. A relative Cwd is taken from the
// agent's directory; flags the agent was started with still apply unless
// ov replaces them.
func (a *Agent) Scoped(ov Overrides) (sandbox.Policy, string, error) {
	cwd := a.Cwd
	if ov.Cwd != "" {
		cwd = ov.Cwd
		if !filepath.IsAbs(cwd) {
			cwd = filepath.Join(a.Cwd, cwd)
		}
		if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
			return sandbox.Policy{}, "", fmt.Errorf("working directory %s is not a directory", cwd)
		}
	}
	if !ov.FullAuto && ov.Sandbox == "" && cwd == a.Cwd {
		return a.Policy, cwd, nil
	}
	merged := a.overrides
	merged.FullAuto = merged.FullAuto || ov.FullAuto
	if ov.Sandbox != "" {
		merged.Sandbox = ov.Sandbox
	}
	p, err := ResolvePolicy(a.cfg, merged, cwd)
	return p, cwd, err
}

// NewSessionIn is NewSession rooted at cwd.
func (a *Agent) NewSessionIn(cwd string, policy *sandbox.Policy) (*Handle, error) {
	p := a.Policy
	if policy != nil {
		p = *policy
	}
	opts := session.Options{
		Cwd:            cwd,
		Policy:         p,
		Backend:        a.Backend,
		Model:          a.model,
		ExecPolicy:     a.execPolicy,
		Runner:         execrun.NewProcessRunner(a.Backend),
		CommandTimeout: a.cfg.Timeout(),
	}
	if a.tools != nil {
		opts.Tools = a.tools
	}
	if a.toolPolicy != nil {
		opts.ToolPolicy = a.toolPolicy
	}

	bus := protocol.NewBus()
	sess, err := session.New(bus, opts)
	if err != nil {
		return nil, err
	}
	h := &Handle{Bus: bus, Session: sess, done: make(chan struct{})}

	if a.journal != nil {
		q := bus.Subscribe()
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.journal.Follow(context.Background(), sess.ID(), q); err != nil {
				a.log.Warn("journal for %s stopped: %v", sess.ID(), err)
			}
		}()
	}
	return h, nil
}

// Start runs the session in the background.
func (h *Handle) Start(ctx context.Context) {
	go func() {
		defer close(h.done)
		h.err = h.Session.Run(ctx)
	}()
}

// Wait blocks until the session has shut down.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Done is closed when the session has shut down.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Close releases shared collaborators after every session has ended.
func (a *Agent) Close() error {
	a.wg.Wait()
	var errs []error
	if a.tools != nil {
		errs = append(errs, a.tools.Close())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.livePolicy != nil {
		errs = append(errs, a.livePolicy.Close())
	}
	return errors.Join(errs...)
}
