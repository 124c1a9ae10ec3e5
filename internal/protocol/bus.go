package protocol

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Bus joins one session to its front ends: a single inbound Submission
// queue and a broadcast of every Event to each subscriber.
type Bus struct {
	ops *Queue[Submission]
	seq atomic.Uint64

	mu     sync.Mutex
	subs   []*Queue[Event]
	closed bool
}

func NewBus() *Bus {
	return &Bus{ops: NewQueue[Submission]()}
}

// Submit enqueues op under a freshly issued id and returns that id.
func (b *Bus) Submit(op Op) (string, error) {
	id := strconv.FormatUint(b.seq.Add(1), 10)
	return id, b.ops.Push(Submission{ID: id, Op: op})
}

// SubmitWithID enqueues a submission whose id was chosen by the front end.
func (b *Bus) SubmitWithID(s Submission) error {
	return b.ops.Push(s)
}

// NextSubmission is the session's receive side.
func (b *Bus) NextSubmission(ctx context.Context) (Submission, error) {
	return b.ops.Pop(ctx)
}

// CloseSubmissions marks the front end as gone. The session drains what is
// queued and then sees io.EOF.
func (b *Bus) CloseSubmissions() {
	b.ops.Close()
}

// Subscribe returns a queue receiving every Event emitted from now on.
// Subscribing after CloseEvents yields an already closed queue.
func (b *Bus) Subscribe() *Queue[Event] {
	q := NewQueue[Event]()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		q.Close()
		return q
	}
	b.subs = append(b.subs, q)
	return q
}

// Unsubscribe detaches q and closes it.
func (b *Bus) Unsubscribe(q *Queue[Event]) {
	b.mu.Lock()
	for i, s := range b.subs {
		if s == q {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	q.Close()
}

// Emit broadcasts ev. Emission is serialized so all subscribers observe the
// same order.
func (b *Bus) Emit(ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, q := range b.subs {
		_ = q.Push(ev)
	}
	return nil
}

// CloseEvents ends the outbound side. Subscribers drain queued events before
// seeing io.EOF.
func (b *Bus) CloseEvents() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, q := range b.subs {
		q.Close()
	}
}
