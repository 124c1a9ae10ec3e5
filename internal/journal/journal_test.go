package journal

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/seeky/internal/protocol"
	"github.com/codefionn/seeky/internal/redact"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestFollowRecordsEventsInOrder(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	q := protocol.NewQueue[protocol.Event]()
	require.NoError(t, q.Push(protocol.Event{Msg: protocol.SessionConfigured{SessionID: "s1", Model: "m"}}))
	require.NoError(t, q.Push(protocol.Event{ID: "1", Msg: protocol.TaskStarted{}}))
	require.NoError(t, q.Push(protocol.Event{ID: "1", Msg: protocol.ExecCommandEnd{CallID: "call_1", ExitCode: 2, Stderr: "boom"}}))
	require.NoError(t, q.Push(protocol.Event{ID: "1", Msg: protocol.TaskComplete{Denied: []string{"call_2"}}}))
	q.Close()

	require.NoError(t, j.Follow(ctx, "s1", q))

	entries, err := j.Events(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.Equal(t, "", entries[0].Event.ID)
	end, ok := entries[2].Event.Msg.(protocol.ExecCommandEnd)
	require.True(t, ok)
	assert.Equal(t, 2, end.ExitCode)
	done, ok := entries[3].Event.Msg.(protocol.TaskComplete)
	require.True(t, ok)
	assert.Equal(t, []string{"call_2"}, done.Denied)
}

func TestSessionsAreSeparate(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, "a", 1, protocol.Event{Msg: protocol.TaskStarted{}}))
	require.NoError(t, j.Record(ctx, "b", 1, protocol.Event{Msg: protocol.TaskStarted{}}))
	require.NoError(t, j.Record(ctx, "b", 2, protocol.Event{Msg: protocol.ShutdownComplete{}}))

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, sessions)

	entries, err := j.Events(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// (session_id, seq) is unique.
	assert.Error(t, j.Record(ctx, "a", 1, protocol.Event{Msg: protocol.TaskStarted{}}))
}

func TestReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), "s", 1, protocol.Event{Msg: protocol.AgentMessage{Message: "hi"}}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Events(context.Background(), "s")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, protocol.AgentMessage{Message: "hi"}, entries[0].Event.Msg)
}

func TestRecordRedactsCredentials(t *testing.T) {
	j := openTemp(t)
	j.SetRedactor(redact.New().WithValues("local-secret-value"))
	ctx := context.Background()

	key := "sk-ant-api03-" + strings.Repeat("k", 32)
	require.NoError(t, j.Record(ctx, "s1", 1, protocol.Event{ID: "1", Msg: protocol.ExecCommandEnd{
		CallID: "call_1", Stdout: "ANTHROPIC_API_KEY=" + key + "\nTOKEN=local-secret-value\n",
	}}))

	entries, err := j.Events(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	end, ok := entries[0].Event.Msg.(protocol.ExecCommandEnd)
	require.True(t, ok)
	assert.Equal(t, "ANTHROPIC_API_KEY=[REDACTED]\nTOKEN=[REDACTED]\n", end.Stdout)
}
