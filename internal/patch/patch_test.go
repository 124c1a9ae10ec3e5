package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/seeky/internal/protocol"
	"github.com/codefionn/seeky/internal/sandbox"
)

const updateDiff = `--- a/hello.txt
+++ b/hello.txt
@@ -1,3 +1,3 @@
 one
-two
+TWO
 three
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestApplyUpdate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.txt"), "one\ntwo\nthree\n")

	p, err := Parse(updateDiff, dir)
	require.NoError(t, err)
	require.Len(t, p.Files, 1)
	assert.Equal(t, protocol.ChangeUpdate, p.Files[0].Kind)

	res, err := Apply(p)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "M "+filepath.Join(dir, "hello.txt"))
	assert.Equal(t, "one\nTWO\nthree\n", readFile(t, filepath.Join(dir, "hello.txt")))
}

func TestApplyAddAndDelete(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old.txt"), "bye\n")

	text := `--- /dev/null
+++ b/sub/new.txt
@@ -0,0 +1,2 @@
+hello
+world
--- a/old.txt
+++ /dev/null
@@ -1 +0,0 @@
-bye
`
	p, err := Parse(text, dir)
	require.NoError(t, err)

	changes := p.Changes()
	assert.Equal(t, protocol.FileChange{Kind: protocol.ChangeAdd, Content: "hello\nworld\n"}, changes[filepath.Join(dir, "sub", "new.txt")])
	assert.Equal(t, protocol.ChangeDelete, changes[filepath.Join(dir, "old.txt")].Kind)

	_, err = Apply(p)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", readFile(t, filepath.Join(dir, "sub", "new.txt")))
	assert.NoFileExists(t, filepath.Join(dir, "old.txt"))
}

func TestApplyIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.txt"), "one\ntwo\nthree\n")
	writeFile(t, filepath.Join(dir, "other.txt"), "unrelated\n")

	text := updateDiff + `--- a/other.txt
+++ b/other.txt
@@ -1 +1 @@
-something else
+changed
`
	p, err := Parse(text, dir)
	require.NoError(t, err)

	res, err := Apply(p)
	require.Error(t, err)
	assert.Contains(t, res.Stderr, "does not apply")
	assert.Equal(t, "one\ntwo\nthree\n", readFile(t, filepath.Join(dir, "hello.txt")))
}

func TestApplyPreservesMissingTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "x\ny\nz")

	p, err := Parse(`--- a/a.txt
+++ b/a.txt
@@ -1,2 +1,2 @@
-x
+X
 y
`, dir)
	require.NoError(t, err)
	_, err = Apply(p)
	require.NoError(t, err)
	assert.Equal(t, "X\ny\nz", readFile(t, filepath.Join(dir, "a.txt")))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("  \n", "/w")
	assert.Error(t, err)

	_, err = Parse(updateDiff+updateDiff, "/w")
	assert.Error(t, err, "same file twice")
}

func TestGrantRootAndAutoApproval(t *testing.T) {
	text := `--- a/src/a.go
+++ b/src/a.go
@@ -1 +1 @@
-a
+b
--- a/docs/readme.md
+++ b/docs/readme.md
@@ -1 +1 @@
-a
+b
`
	p, err := Parse(text, "/work")
	require.NoError(t, err)
	assert.Equal(t, "/work", p.GrantRoot())

	ws := sandbox.Select(false, nil)
	mode := sandbox.ModeWorkspaceWrite
	write := sandbox.Select(false, &mode)

	assert.False(t, CanAutoApprove(p, ws.WithGrantRoot("/work")), "read-only never auto-approves")
	assert.True(t, CanAutoApprove(p, write.WithGrantRoot("/work")))
	assert.False(t, CanAutoApprove(p, write.WithGrantRoot("/work/src")))
	assert.True(t, CanAutoApprove(p, sandbox.Select(true, nil).WithGrantRoot("/work")))

	outside, err := Parse(`--- a/../etc/hosts
+++ b/../etc/hosts
@@ -1 +1 @@
-a
+b
`, "/work")
	require.NoError(t, err)
	assert.False(t, CanAutoApprove(outside, write.WithGrantRoot("/work")))
	assert.Equal(t, []string{"/etc/hosts"}, outside.Paths())
}

func TestNormalizeHeadersSkipsHunkBodies(t *testing.T) {
	text := "--- a/x\n+++ b/x\n@@ -1,2 +1,2 @@\n--- not a header\n+++ nor this\n ctx\n--- a/y\n+++ b/y\n@@ -1 +1 @@\n-a\n+b\n"
	got := normalizeHeaders(text)
	assert.Equal(t, "diff --git a/x b/x\n--- a/x\n+++ b/x\n@@ -1,2 +1,2 @@\n--- not a header\n+++ nor this\n ctx\n"+
		"diff --git a/y b/y\n--- a/y\n+++ b/y\n@@ -1 +1 @@\n-a\n+b\n", got)

	withGit := "diff --git a/x b/x\nindex 1..2 100644\n--- a/x\n+++ b/x\n"
	assert.Equal(t, withGit, normalizeHeaders(withGit))
}
