// Package journal appends every session event to a sqlite database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codefionn/seeky/internal/logger"
	"github.com/codefionn/seeky/internal/protocol"
	"github.com/codefionn/seeky/internal/redact"
)

// Entry is one journaled event.
type Entry struct {
	SessionID string
	Seq       int64
	Event     protocol.Event
	CreatedAt time.Time
}

// Journal handles the events table.
type Journal struct {
	db       *sql.DB
	path     string
	log      *logger.Logger
	redactor *redact.Redactor
}

// Open creates or opens the journal at path.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// Followers of concurrent sessions share one connection.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, path: path, log: logger.Global().WithPrefix("journal")}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// SetRedactor masks credentials in payloads before they are stored. Call
// it before any follower starts.
func (j *Journal) SetRedactor(r *redact.Redactor) {
	j.redactor = r
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		event_id TEXT,
		type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record stores ev as the seq-th event of a session.
func (j *Journal) Record(ctx context.Context, sessionID string, seq int64, ev protocol.Event) error {
	payload, err := protocol.MarshalEventMsg(ev.Msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ev.Msg.EventType(), err)
	}
	text := string(payload)
	if j.redactor != nil {
		var n int
		if text, n = j.redactor.String(text); n > 0 {
			j.log.Debug("session %s seq %d: redacted %d value(s)", sessionID, seq, n)
		}
	}
	var eventID sql.NullString
	if ev.ID != "" {
		eventID = sql.NullString{String: ev.ID, Valid: true}
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO events (session_id, seq, event_id, type, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, seq, eventID, ev.Msg.EventType(), text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Follow records every event popped from q until it is closed and
// drained. Write failures are logged and do not stop the follower.
func (j *Journal) Follow(ctx context.Context, sessionID string, q *protocol.Queue[protocol.Event]) error {
	var seq int64
	for {
		ev, err := q.Pop(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		seq++
		if err := j.Record(ctx, sessionID, seq, ev); err != nil {
			j.log.Warn("session %s seq %d: %v", sessionID, seq, err)
		}
	}
}

// Events returns the journal of one session in order.
func (j *Journal) Events(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, event_id, payload, created_at FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			eventID sql.NullString
			payload string
		)
		if err := rows.Scan(&e.Seq, &eventID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		msg, err := protocol.UnmarshalEventMsg([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", e.Seq, err)
		}
		e.SessionID = sessionID
		e.Event = protocol.Event{ID: eventID.String, Msg: msg}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions lists journaled session ids, most recent first.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id FROM events GROUP BY session_id ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
