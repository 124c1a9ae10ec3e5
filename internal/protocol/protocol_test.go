package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionWireFormat(t *testing.T) {
	sub := Submission{ID: "1", Op: UserInput{Items: []InputItem{
		TextItem{Text: "list files"},
		LocalImageItem{Path: "/tmp/shot.png"},
	}}}

	data, err := json.Marshal(sub)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","op":{"type":"user_input","items":[
		{"type":"text","text":"list files"},
		{"type":"local_image","path":"/tmp/shot.png"}]}}`, string(data))

	var back Submission
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, sub, back)
}

func TestDecodeOps(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want Op
	}{
		{"decision", `{"type":"approval_decision","id":"7","decision":"denied"}`, ApprovalDecision{ID: "7", Decision: DecisionDenied}},
		{"session", `{"type":"approval_decision","id":"2","decision":"approved_for_session"}`, ApprovalDecision{ID: "2", Decision: DecisionApprovedForSession}},
		{"interrupt", `{"type":"interrupt"}`, Interrupt{}},
		{"shutdown", `{"type":"shutdown"}`, Shutdown{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := UnmarshalOp([]byte(tt.wire))
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}
}

func TestDecodeOpRejectsGarbage(t *testing.T) {
	for _, wire := range []string{
		`{"type":"launch_missiles"}`,
		`{"type":"approval_decision","id":"1","decision":"maybe"}`,
		`{"id":"1"}`,
		`[]`,
	} {
		_, err := UnmarshalOp([]byte(wire))
		assert.Error(t, err, wire)
	}
}

func TestEventWireFormat(t *testing.T) {
	ev := Event{ID: "3", Msg: ExecApprovalRequest{CallID: "call-1", Command: []string{"rm", "-rf", "build"}, Cwd: "/work"}}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"3","msg":{"type":"exec_approval_request","call_id":"call-1","command":["rm","-rf","build"],"cwd":"/work"}}`, string(data))

	data, err = json.Marshal(Event{Msg: TaskStarted{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg":{"type":"task_started"}}`, string(data))
}

func TestUnknownEventIsOpaque(t *testing.T) {
	raw := `{"id":"9","msg":{"type":"token_count","input":12}}`
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))

	unknown, ok := ev.Msg.(UnknownEvent)
	require.True(t, ok, "got %T", ev.Msg)
	assert.Equal(t, "token_count", unknown.EventType())

	again, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(again))
}

func TestCallIDHelpers(t *testing.T) {
	id, ok := CallID(PatchApplyEnd{CallID: "p1"})
	assert.True(t, ok)
	assert.Equal(t, "p1", id)
	_, ok = CallID(AgentMessage{})
	assert.False(t, ok)
	assert.True(t, IsBegin(McpToolCallBegin{}))
	assert.True(t, IsEnd(ExecCommandEnd{}))
	assert.False(t, IsEnd(ExecCommandBegin{}))
}

func TestQueuePreservesOrderAcrossClose(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 100; i++ {
		require.NoError(t, q.Push(i))
	}
	q.Close()
	assert.ErrorIs(t, q.Push(100), ErrClosed)

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		v, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestQueuePopWaitsForPush(t *testing.T) {
	q := NewQueue[string]()
	got := make(chan string, 1)
	go func() {
		v, _ := q.Pop(context.Background())
		got <- v
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push("hello"))
	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestQueuePopHonorsContext(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueManyProducers(t *testing.T) {
	q := NewQueue[int]()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				_ = q.Push(i)
			}
		}()
	}
	wg.Wait()
	q.Close()

	n := 0
	for {
		if _, err := q.Pop(context.Background()); err != nil {
			break
		}
		n++
	}
	assert.Equal(t, 2000, n)
}

func TestBusBroadcastsInOrder(t *testing.T) {
	bus := NewBus()
	a, b := bus.Subscribe(), bus.Subscribe()

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Emit(Event{Msg: AgentMessage{Message: string(rune('a' + i))}}))
	}
	bus.CloseEvents()
	assert.ErrorIs(t, bus.Emit(Event{Msg: TaskStarted{}}), ErrClosed)

	for _, q := range []*Queue[Event]{a, b} {
		var got []string
		for {
			ev, err := q.Pop(context.Background())
			if err != nil {
				break
			}
			got = append(got, ev.Msg.(AgentMessage).Message)
		}
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
	}

	late := bus.Subscribe()
	_, err := late.Pop(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestBusSubmitIssuesMonotonicIDs(t *testing.T) {
	bus := NewBus()
	first, err := bus.Submit(Interrupt{})
	require.NoError(t, err)
	second, err := bus.Submit(Shutdown{})
	require.NoError(t, err)
	assert.Equal(t, "1", first)
	assert.Equal(t, "2", second)

	sub, err := bus.NextSubmission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Submission{ID: "1", Op: Interrupt{}}, sub)
}

func TestDecoderReportsMalformedRecordAndContinues(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"1","op":{"type":"interrupt"}}`,
		``,
		`{not json`,
		`{"id":"2","op":{"type":"shutdown"}}`,
	}, "\n")
	dec := NewDecoder(strings.NewReader(input))

	sub, err := dec.ReadSubmission()
	require.NoError(t, err)
	assert.Equal(t, "1", sub.ID)

	_, err = dec.ReadSubmission()
	var recErr *RecordError
	require.True(t, errors.As(err, &recErr), "got %v", err)
	assert.Equal(t, 3, recErr.Line)

	sub, err = dec.ReadSubmission()
	require.NoError(t, err)
	assert.Equal(t, Shutdown{}, sub.Op)

	_, err = dec.ReadSubmission()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderSkipsOversizedRecord(t *testing.T) {
	input := `{"id":"1","op":{"type":"interrupt"}}` + "\n" +
		strings.Repeat("x", 17<<20) + "\n" +
		`{"id":"2","op":{"type":"shutdown"}}` + "\n"
	dec := NewDecoder(strings.NewReader(input))

	sub, err := dec.ReadSubmission()
	require.NoError(t, err)
	assert.Equal(t, "1", sub.ID)

	_, err = dec.ReadSubmission()
	var recErr *RecordError
	require.True(t, errors.As(err, &recErr), "got %v", err)
	assert.Equal(t, 2, recErr.Line)
	assert.ErrorIs(t, err, ErrRecordTooLarge)

	sub, err = dec.ReadSubmission()
	require.NoError(t, err)
	assert.Equal(t, "2", sub.ID)
	assert.Equal(t, Shutdown{}, sub.Op)

	_, err = dec.ReadSubmission()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderReadsFinalLineWithoutNewline(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"id":"1","op":{"type":"interrupt"}}`))
	sub, err := dec.ReadSubmission()
	require.NoError(t, err)
	assert.Equal(t, Interrupt{}, sub.Op)
	_, err = dec.ReadSubmission()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEncoderWritesOneRecordPerLine(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.WriteEvent(Event{Msg: SessionConfigured{SessionID: "s"}}))
	require.NoError(t, enc.WriteEvent(Event{ID: "1", Msg: TaskComplete{Denied: []string{"c1"}}}))

	dec := NewDecoder(&buf)
	ev, err := dec.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, SessionConfigured{SessionID: "s"}, ev.Msg)
	ev, err = dec.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, TaskComplete{Denied: []string{"c1"}}, ev.Msg)
}
