package wsserver

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codefionn/seeky/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 16 << 20
)

// transport adapts one websocket connection to proto.Transport. Reads and
// writes each happen on a single goroutine.
type transport struct {
	conn     *websocket.Conn
	messages int
}

func newTransport(conn *websocket.Conn) *transport {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &transport{conn: conn}
}

func (t *transport) ReadSubmission() (protocol.Submission, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return protocol.Submission{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		t.messages++
		var sub protocol.Submission
		if err := json.Unmarshal(data, &sub); err != nil {
			return protocol.Submission{}, &protocol.RecordError{Line: t.messages, Err: err}
		}
		return sub, nil
	}
}

func (t *transport) WriteEvent(ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// keepAlive pings the peer until the returned func is called. Control
// frames may be written concurrently with WriteEvent.
func keepAlive(conn *websocket.Conn) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
