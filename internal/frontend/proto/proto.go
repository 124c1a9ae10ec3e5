// Package proto connects a session to a raw record stream: Submissions in,
// Events out. The stdio front end and the websocket host both run on it.
package proto

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/codefionn/seeky/internal/agent"
	"github.com/codefionn/seeky/internal/logger"
	"github.com/codefionn/seeky/internal/protocol"
)

// Transport carries records for one session.
type Transport interface {
	// ReadSubmission returns the next Op. A *protocol.RecordError rejects
	// one record; io.EOF or any other error ends the inbound side.
	ReadSubmission() (protocol.Submission, error)
	WriteEvent(protocol.Event) error
}

type stdio struct {
	*protocol.Decoder
	*protocol.Encoder
}

// Stdio frames records as JSON lines over r and w.
func Stdio(r io.Reader, w io.Writer) Transport {
	return stdio{Decoder: protocol.NewDecoder(r), Encoder: protocol.NewEncoder(w)}
}

// Serve starts h and pumps records until the session has shut down and
// every event has been written. The end of the inbound stream requests
// Shutdown; a failed write does the same. Inbound records are not read
// until SessionConfigured has gone out, so it stays the first event.
func Serve(ctx context.Context, h *agent.Handle, t Transport) error {
	log := logger.Global().WithPrefix("proto")
	events := h.Bus.Subscribe()
	h.Start(ctx)

	configured := make(chan struct{})
	written := make(chan error, 1)
	go func() { written <- writeLoop(h.Bus, events, t, configured, log) }()
	go readLoop(h.Bus, t, configured, log)

	werr := <-written
	return errors.Join(h.Wait(), werr)
}

func readLoop(bus *protocol.Bus, t Transport, configured <-chan struct{}, log *logger.Logger) {
	<-configured
	for {
		sub, err := t.ReadSubmission()
		if err != nil {
			var rerr *protocol.RecordError
			if errors.As(err, &rerr) {
				log.Warn("%v", rerr)
				_ = bus.Emit(protocol.Event{Msg: protocol.Error{Message: rerr.Error()}})
				continue
			}
			if !errors.Is(err, io.EOF) {
				log.Warn("inbound stream failed: %v", err)
			}
			requestShutdown(bus)
			return
		}
		if sub.ID == "" {
			_, err = bus.Submit(sub.Op)
		} else {
			err = bus.SubmitWithID(sub)
		}
		if err != nil {
			// The session has already stopped reading.
			return
		}
	}
}

// writeLoop closes configured once SessionConfigured has been written, or
// when the event stream ends without one.
func writeLoop(bus *protocol.Bus, events *protocol.Queue[protocol.Event], t Transport, configured chan<- struct{}, log *logger.Logger) error {
	var once sync.Once
	markConfigured := func() { once.Do(func() { close(configured) }) }
	defer markConfigured()

	var werr error
	for {
		ev, err := events.Pop(context.Background())
		if err != nil {
			return werr
		}
		if werr == nil {
			if err := t.WriteEvent(ev); err != nil {
				log.Warn("outbound stream failed: %v", err)
				werr = fmt.Errorf("write event: %w", err)
				requestShutdown(bus)
			}
		}
		if _, ok := ev.Msg.(protocol.SessionConfigured); ok {
			markConfigured()
		}
	}
}

func requestShutdown(bus *protocol.Bus) {
	_, _ = bus.Submit(protocol.Shutdown{})
}
