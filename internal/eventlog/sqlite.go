package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default durable Store, backed by the pure-Go
// modernc.org/sqlite driver so the binary needs no cgo toolchain.
type SQLiteStore struct {
	db *sql.DB
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS workflow_events (
	task_id     TEXT NOT NULL,
	event_id    TEXT NOT NULL,
	seq_num     INTEGER NOT NULL,
	phase       TEXT NOT NULL,
	run_id      TEXT,
	agent_id    TEXT,
	summary     TEXT,
	payload     TEXT,
	note        TEXT,
	provider    TEXT,
	channel     TEXT,
	chat_id     TEXT,
	thread_id   TEXT,
	source      TEXT,
	detail_file TEXT,
	max_turns   INTEGER,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (task_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_workflow_events_task_seq ON workflow_events (task_id, seq_num);
CREATE INDEX IF NOT EXISTS idx_workflow_events_seq ON workflow_events (seq_num);
CREATE INDEX IF NOT EXISTS idx_workflow_events_run ON workflow_events (run_id);
CREATE INDEX IF NOT EXISTS idx_workflow_events_agent ON workflow_events (agent_id);
CREATE INDEX IF NOT EXISTS idx_workflow_events_chat ON workflow_events (chat_id);
CREATE TABLE IF NOT EXISTS workflow_event_seq (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	next_seq INTEGER NOT NULL
);
INSERT OR IGNORE INTO workflow_event_seq (id, next_seq) VALUES (1, 1);
`

const eventColumns = "task_id, event_id, seq_num, phase, run_id, agent_id, summary, payload, note, provider, channel, chat_id, thread_id, source, detail_file, max_turns, created_at"

// NewSQLiteStore opens (creating if absent) a SQLite-backed event store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn.
	if _, err := db.Exec(createEventsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, e Event) (bool, Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, Event{}, fmt.Errorf("eventlog: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM workflow_events WHERE task_id = ? AND event_id = ?`,
		e.TaskID, e.EventID)
	if existing, err := scanEvent(row); err == nil {
		return false, existing, nil
	} else if err != sql.ErrNoRows {
		return false, Event{}, fmt.Errorf("eventlog: lookup: %w", err)
	}

	var nextSeq int64
	if err := tx.QueryRowContext(ctx, `SELECT next_seq FROM workflow_event_seq WHERE id = 1`).Scan(&nextSeq); err != nil {
		return false, Event{}, fmt.Errorf("eventlog: next seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE workflow_event_seq SET next_seq = ? WHERE id = 1`, nextSeq+1); err != nil {
		return false, Event{}, fmt.Errorf("eventlog: advance seq: %w", err)
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.SeqNum = nextSeq

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workflow_events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.EventID, e.SeqNum, string(e.Phase), e.RunID, e.AgentID, e.Summary,
		string(e.Payload), e.Note, e.Provider, e.Channel, e.ChatID, e.ThreadID,
		string(e.Source), e.DetailFile, e.MaxTurns, e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, Event{}, fmt.Errorf("eventlog: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, Event{}, fmt.Errorf("eventlog: commit: %w", err)
	}
	return true, e, nil
}

// ListEvents implements Store.
func (s *SQLiteStore) ListEvents(ctx context.Context, taskID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM workflow_events WHERE task_id = ? ORDER BY seq_num ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: list: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent implements Store.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM workflow_events ORDER BY seq_num DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: list recent: %w", err)
	}
	defer rows.Close()

	out, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	// Reverse to oldest-first for a consistent contract with ListEvents.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Event, error) {
	where, args := sqliteFilterClause(f)
	query := `SELECT ` + eventColumns + ` FROM workflow_events` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: list filtered: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func sqliteFilterClause(f Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		clauses = append(clauses, col+" = ?")
		args = append(args, val)
	}
	add("phase", string(f.Phase))
	add("task_id", f.TaskID)
	add("run_id", f.RunID)
	add("agent_id", f.AgentID)
	add("chat_id", f.ChatID)
	add("source", string(f.Source))
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var e Event
	var payload, note, runID, agentID, summary, provider, channel, chatID, threadID, source, detailFile sql.NullString
	var maxTurns sql.NullInt64
	var createdAt string
	if err := row.Scan(&e.TaskID, &e.EventID, &e.SeqNum, &e.Phase, &runID, &agentID, &summary,
		&payload, &note, &provider, &channel, &chatID, &threadID, &source, &detailFile, &maxTurns, &createdAt); err != nil {
		return Event{}, err
	}
	e.RunID = runID.String
	e.AgentID = agentID.String
	e.Summary = summary.String
	e.Payload = json.RawMessage(payload.String)
	e.Note = note.String
	e.Provider = provider.String
	e.Channel = channel.String
	e.ChatID = chatID.String
	e.ThreadID = threadID.String
	e.Source = Source(source.String)
	e.DetailFile = detailFile.String
	e.MaxTurns = int(maxTurns.Int64)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return e, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
