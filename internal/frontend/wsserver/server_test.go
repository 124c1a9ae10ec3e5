package wsserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/seeky/internal/agent"
	"github.com/codefionn/seeky/internal/execpolicy"
	"github.com/codefionn/seeky/internal/llm"
	"github.com/codefionn/seeky/internal/protocol"
	"github.com/codefionn/seeky/internal/sandbox"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, chan *agent.Handle) {
	t.Helper()
	policy, err := execpolicy.GetDefaultPolicy()
	require.NoError(t, err)
	a := agent.NewWithOptions(t.TempDir(), sandbox.Policy{Kind: sandbox.KindNone}, sandbox.ForHost(sandbox.Options{}),
		llm.NewScriptedModel(llm.ScriptTurn{Message: "pong"}), policy)

	handles := make(chan *agent.Handle, 4)
	srv, err := NewServer("127.0.0.1:0", "secret", func() (*agent.Handle, error) {
		h, err := a.NewSession(nil)
		if err == nil {
			handles <- h
		}
		return h, err
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts, handles
}

func wsURL(ts *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/session?token=" + token
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev protocol.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestRejectsBadToken(t *testing.T) {
	_, ts, _ := newTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "wrong"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	_, ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionOverWebsocket(t *testing.T) {
	_, ts, handles := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "secret"), nil)
	require.NoError(t, err)

	ev := readEvent(t, conn)
	_, ok := ev.Msg.(protocol.SessionConfigured)
	require.True(t, ok, "first event is %T", ev.Msg)

	sub, err := json.Marshal(protocol.Submission{ID: "q1", Op: protocol.UserInput{
		Items: []protocol.InputItem{protocol.TextItem{Text: "ping"}},
	}})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, sub))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))

	var sawMalformed, sawComplete bool
	for !(sawMalformed && sawComplete) {
		ev := readEvent(t, conn)
		switch m := ev.Msg.(type) {
		case protocol.Error:
			assert.Contains(t, m.Message, "line 2")
			sawMalformed = true
		case protocol.TaskComplete:
			assert.Equal(t, "q1", ev.ID)
			assert.Equal(t, "pong", m.LastAgentMessage)
			sawComplete = true
		}
	}

	// Dropping the connection ends only this session.
	h := <-handles
	require.NoError(t, conn.Close())
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not shut down after disconnect")
	}
}
