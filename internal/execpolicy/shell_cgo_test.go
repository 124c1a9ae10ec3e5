//go:build cgo

package execpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellWrapperSplitsScript(t *testing.T) {
	p := mustDefault(t)

	tests := []struct {
		script string
		want   Verdict
	}{
		{"ls -la && pwd", Safe},
		{"git status; git log --oneline -n 3", Safe},
		{"grep -rn 'TODO' . | wc -l", Safe},
		{`cat "README.md"`, Safe},
		{"ls && rm -rf /", Forbidden},
		{"ls && make", MatchButInconclusive},
		{"ls > out.txt", MatchButInconclusive},
		{"echo $HOME", MatchButInconclusive},
		{"ls $(pwd)", MatchButInconclusive},
		{"FOO=1 ls", MatchButInconclusive},
		{"sleep 1 &", MatchButInconclusive},
		{"if true; then ls; fi", MatchButInconclusive},
		{"ls (", MatchButInconclusive},
	}
	for _, tt := range tests {
		t.Run(tt.script, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Classify([]string{"bash", "-lc", tt.script}))
		})
	}
}

func TestSplitShellScript(t *testing.T) {
	cmds, ok := splitShellScript(`ls -la 'my dir' && echo "done"`)
	assert.True(t, ok)
	assert.Equal(t, [][]string{{"ls", "-la", "my dir"}, {"echo", "done"}}, cmds)
}

func TestSystemShellsAreUnwrapped(t *testing.T) {
	p := mustDefault(t)
	for _, argv := range [][]string{
		{"bash", "-lc", "ls"},
		{"/bin/bash", "-c", "ls"},
		{"/usr/bin/sh", "-c", "ls"},
	} {
		assert.Equal(t, Safe, p.Classify(argv), argv)
	}
	assert.Equal(t, MatchButInconclusive, p.Classify([]string{"/opt/bash", "-c", "ls"}))
}
