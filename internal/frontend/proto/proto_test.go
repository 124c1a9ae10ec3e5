package proto

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/seeky/internal/agent"
	"github.com/codefionn/seeky/internal/execpolicy"
	"github.com/codefionn/seeky/internal/llm"
	"github.com/codefionn/seeky/internal/protocol"
	"github.com/codefionn/seeky/internal/sandbox"
)

func newHandle(t *testing.T) *agent.Handle {
	t.Helper()
	policy, err := execpolicy.GetDefaultPolicy()
	require.NoError(t, err)
	dir := t.TempDir()
	a := agent.NewWithOptions(dir, sandbox.Policy{Kind: sandbox.KindNone}, sandbox.ForHost(sandbox.Options{}),
		llm.NewScriptedModel(llm.ScriptTurn{Message: "pong"}), policy)
	h, err := a.NewSession(nil)
	require.NoError(t, err)
	return h
}

func TestServeStdio(t *testing.T) {
	h := newHandle(t)
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		errc <- Serve(context.Background(), h, Stdio(inR, outW))
		_ = outW.Close()
	}()

	go func() {
		_, _ = io.WriteString(inW, `{"id":"a","op":{"type":"user_input","items":[{"type":"text","text":"ping"}]}}`+"\n")
		_, _ = io.WriteString(inW, "not json\n")
	}()

	dec := protocol.NewDecoder(outR)
	var seen []protocol.Event
	var sawMalformed, sawComplete bool
	for !(sawMalformed && sawComplete) {
		ev, err := dec.ReadEvent()
		require.NoError(t, err)
		seen = append(seen, ev)
		switch m := ev.Msg.(type) {
		case protocol.Error:
			assert.Empty(t, ev.ID)
			assert.Contains(t, m.Message, "line 2")
			sawMalformed = true
		case protocol.TaskComplete:
			assert.Equal(t, "a", ev.ID)
			assert.Equal(t, "pong", m.LastAgentMessage)
			sawComplete = true
		}
	}
	_, ok := seen[0].Msg.(protocol.SessionConfigured)
	assert.True(t, ok, "first event is %T", seen[0].Msg)

	// End of input shuts the session down.
	require.NoError(t, inW.Close())
	var last protocol.Event
	for {
		ev, err := dec.ReadEvent()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		last = ev
	}
	_, ok = last.Msg.(protocol.ShutdownComplete)
	assert.True(t, ok, "last event is %T", last.Msg)

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestSessionConfiguredPrecedesRecordErrors(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHandle(t)
		var out bytes.Buffer
		in := strings.NewReader("not json\n{also bad\n")
		require.NoError(t, Serve(context.Background(), h, Stdio(in, &out)))

		dec := protocol.NewDecoder(&out)
		var msgs []protocol.EventMsg
		for {
			ev, err := dec.ReadEvent()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			msgs = append(msgs, ev.Msg)
		}
		require.Len(t, msgs, 4)
		assert.IsType(t, protocol.SessionConfigured{}, msgs[0])
		assert.IsType(t, protocol.Error{}, msgs[1])
		assert.IsType(t, protocol.Error{}, msgs[2])
		assert.IsType(t, protocol.ShutdownComplete{}, msgs[3])
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestServeShutsDownWhenOutputFails(t *testing.T) {
	h := newHandle(t)
	inR, inW := io.Pipe()
	defer inW.Close()

	errc := make(chan error, 1)
	go func() { errc <- Serve(context.Background(), h, Stdio(inR, failingWriter{})) }()

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken pipe")
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
