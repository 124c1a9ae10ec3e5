package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/seeky/internal/config"
	"github.com/codefionn/seeky/internal/execpolicy"
	"github.com/codefionn/seeky/internal/journal"
	"github.com/codefionn/seeky/internal/protocol"
	"github.com/codefionn/seeky/internal/sandbox"
)

func TestResolvePolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sandbox.Mode = "workspace-write"

	p, err := ResolvePolicy(cfg, Overrides{}, "/w")
	require.NoError(t, err)
	assert.Equal(t, sandbox.KindWorkspaceWrite, p.Kind)
	assert.Equal(t, "/w", p.GrantRoot)

	p, err = ResolvePolicy(cfg, Overrides{FullAuto: true, Sandbox: "danger-full-access"}, "/w")
	require.NoError(t, err)
	assert.Equal(t, sandbox.KindFullAuto, p.Kind)

	p, err = ResolvePolicy(config.DefaultConfig(), Overrides{}, "/w")
	require.NoError(t, err)
	assert.Equal(t, sandbox.KindReadOnly, p.Kind)

	_, err = ResolvePolicy(cfg, Overrides{Sandbox: "yolo"}, "/w")
	assert.Error(t, err)
}

func TestSessionsAreJournaled(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "script.yaml")
	require.NoError(t, os.WriteFile(script, []byte("turns:\n  - message: hello there\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.WorkingDir = dir
	cfg.Model = config.ModelConfig{Provider: "scripted", ScriptPath: script}
	cfg.JournalPath = filepath.Join(dir, "journal.db")

	ctx := context.Background()
	a, err := New(ctx, cfg, Overrides{}, "test")
	require.NoError(t, err)

	h, err := a.NewSession(nil)
	require.NoError(t, err)
	events := h.Bus.Subscribe()
	h.Start(ctx)

	_, err = h.Bus.Submit(protocol.UserInput{Items: []protocol.InputItem{protocol.TextItem{Text: "hi"}}})
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var last string
	for {
		ev, err := events.Pop(waitCtx)
		require.NoError(t, err)
		if done, ok := ev.Msg.(protocol.TaskComplete); ok {
			last = done.LastAgentMessage
			break
		}
	}
	assert.Equal(t, "hello there", last)

	_, err = h.Bus.Submit(protocol.Shutdown{})
	require.NoError(t, err)
	require.NoError(t, h.Wait())
	require.NoError(t, a.Close())

	j, err := journal.Open(cfg.JournalPath)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Events(ctx, h.Session.ID())
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "session_configured", entries[0].Event.Msg.EventType())
	assert.Equal(t, "shutdown_complete", entries[len(entries)-1].Event.Msg.EventType())
}

func TestNewRejectsMissingWorkingDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = config.ModelConfig{Provider: "scripted", ScriptPath: "unused"}
	_, err := New(context.Background(), cfg, Overrides{Cwd: filepath.Join(t.TempDir(), "missing")}, "test")
	assert.Error(t, err)
}

func TestPolicyFileIsFollowed(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "script.yaml")
	require.NoError(t, os.WriteFile(script, []byte("turns:\n  - message: ok\n"), 0o644))
	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte("rules:\n  - id: ls\n    program: ls\n    verdict: safe\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.WorkingDir = dir
	cfg.Model = config.ModelConfig{Provider: "scripted", ScriptPath: script}
	cfg.PolicyPath = policyPath

	a, err := New(context.Background(), cfg, Overrides{}, "test")
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, execpolicy.Safe, a.execPolicy.Evaluate([]string{"ls"}).Verdict)

	require.NoError(t, os.WriteFile(policyPath, []byte("rules:\n  - id: ls\n    program: ls\n    verdict: forbidden\n"), 0o644))
	require.Eventually(t, func() bool {
		return a.execPolicy.Evaluate([]string{"ls"}).Verdict == execpolicy.Forbidden
	}, 5*time.Second, 20*time.Millisecond)
}
