//go:build !windows

package execrun

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/seeky/internal/sandbox"
)

var unconfined = sandbox.Policy{Kind: sandbox.KindNone, NetworkAccess: true}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }
func (failingBackend) Available() error {
	return &sandbox.UnsupportedPlatformError{Backend: "failing", GOOS: "test"}
}
func (failingBackend) Command(context.Context, []string, string, sandbox.Policy) (*exec.Cmd, error) {
	return nil, errors.New("unreachable")
}
func (failingBackend) Exec([]string, string, sandbox.Policy) error { return errors.New("unreachable") }

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	r := NewProcessRunner(nil)
	res, err := r.Run(context.Background(), Request{
		CallID: "c1",
		Argv:   []string{"sh", "-c", "echo out; echo err >&2; exit 3"},
		Cwd:    t.TempDir(),
		Policy: unconfined,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.False(t, res.TimedOut)
}

func TestRunUsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	res, err := NewProcessRunner(nil).Run(context.Background(), Request{
		Argv:   []string{"pwd"},
		Cwd:    dir,
		Policy: unconfined,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, strings.TrimSpace(res.Stdout), strings.TrimPrefix(dir, "/private"))
}

func TestRunTimeoutStopsProcessGroup(t *testing.T) {
	r := NewProcessRunner(nil).WithGrace(200 * time.Millisecond)
	start := time.Now()
	res, err := r.Run(context.Background(), Request{
		Argv:    []string{"sh", "-c", "sleep 30 & sleep 30"},
		Cwd:     t.TempDir(),
		Policy:  unconfined,
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, timeoutExitCode, res.ExitCode)
	assert.Contains(t, res.Stderr, "timed out")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunCancelTerminates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	res, err := NewProcessRunner(nil).WithGrace(200*time.Millisecond).Run(ctx, Request{
		Argv:   []string{"sleep", "30"},
		Cwd:    t.TempDir(),
		Policy: unconfined,
	})
	require.NoError(t, err)
	assert.Equal(t, 128+15, res.ExitCode)
	assert.False(t, res.TimedOut)
}

func TestRunMissingProgramIsError(t *testing.T) {
	_, err := NewProcessRunner(nil).Run(context.Background(), Request{
		Argv:   []string{"definitely-not-a-real-program-xyz"},
		Cwd:    t.TempDir(),
		Policy: unconfined,
	})
	assert.Error(t, err)
}

func TestRunConfinedWithUnavailableBackend(t *testing.T) {
	_, err := NewProcessRunner(failingBackend{}).Run(context.Background(), Request{
		Argv:   []string{"ls"},
		Cwd:    t.TempDir(),
		Policy: sandbox.Select(false, nil),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sandbox.ErrUnsupportedPlatform)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = b.Write([]byte("gh"))
	assert.Equal(t, "abcd\n[... 4 bytes truncated]\n", b.String())
}
