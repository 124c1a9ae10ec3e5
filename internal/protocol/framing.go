package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const maxRecordSize = 16 << 20

// ErrRecordTooLarge is the cause of a RecordError for a line over 16 MiB.
var ErrRecordTooLarge = errors.New("record exceeds 16 MiB")

// RecordError reports one malformed record. The stream remains usable.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("malformed record on line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Encoder writes one JSON object per line.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) WriteEvent(ev Event) error {
	return e.write(ev)
}

func (e *Encoder) WriteSubmission(s Submission) error {
	return e.write(s)
}

func (e *Encoder) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(data); err != nil {
		return err
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder reads newline-delimited JSON records. Blank lines are skipped.
type Decoder struct {
	r    *bufio.Reader
	line int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

func (d *Decoder) next() ([]byte, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			return nil, err
		}
		if line = bytes.TrimSpace(line); len(line) > 0 {
			return line, nil
		}
	}
}

// readLine returns the next line. A line longer than maxRecordSize is read
// to its end, discarded and reported as a *RecordError.
func (d *Decoder) readLine() ([]byte, error) {
	var buf []byte
	tooLarge := false
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !tooLarge {
			if len(buf)+len(bytes.TrimSuffix(chunk, []byte("\n"))) > maxRecordSize {
				tooLarge, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(buf) == 0 && !tooLarge {
				return nil, io.EOF
			}
		case err != nil:
			return nil, err
		}
		d.line++
		if tooLarge {
			return nil, &RecordError{Line: d.line, Err: ErrRecordTooLarge}
		}
		return buf, nil
	}
}

// ReadSubmission returns the next Op record. A *RecordError means only that
// line was bad; any other error ends the stream.
func (d *Decoder) ReadSubmission() (Submission, error) {
	line, err := d.next()
	if err != nil {
		return Submission{}, err
	}
	var s Submission
	if err := json.Unmarshal(line, &s); err != nil {
		return Submission{}, &RecordError{Line: d.line, Err: err}
	}
	return s, nil
}

// ReadEvent returns the next Event record.
func (d *Decoder) ReadEvent() (Event, error) {
	line, err := d.next()
	if err != nil {
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, &RecordError{Line: d.line, Err: err}
	}
	return ev, nil
}
