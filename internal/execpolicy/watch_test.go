package execpolicy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lsSafe = `
rules:
  - id: ls
    program: ls
    verdict: safe
`

const lsForbidden = `
rules:
  - id: no-ls
    program: ls
    verdict: forbidden
`

func TestLivePolicyFollowsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lsSafe), 0o644))

	l, err := WatchPolicyFile(path)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, Safe, l.Evaluate([]string{"ls"}).Verdict)

	require.NoError(t, os.WriteFile(path, []byte(lsForbidden), 0o644))
	require.Eventually(t, func() bool {
		return l.Evaluate([]string{"ls"}).Verdict == Forbidden
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "no-ls", l.Policy().Evaluate([]string{"ls"}).RuleID)
}

func TestLivePolicyKeepsRulesOnBadEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lsSafe), 0o644))

	l, err := WatchPolicyFile(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("rules: [unterminated"), 0o644))
	// Other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte(lsForbidden), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, Safe, l.Evaluate([]string{"ls"}).Verdict)
	assert.Zero(t, l.Reloads())
}

func TestWatchPolicyFileNeedsValidStart(t *testing.T) {
	_, err := WatchPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLivePolicyCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lsSafe), 0o644))
	l, err := WatchPolicyFile(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestLivePolicyRejectsSafeBadExamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lsSafe+"examples:\n  bad:\n    - [ls, -la]\n"), 0o644))
	_, err := WatchPolicyFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ls -la")
}
