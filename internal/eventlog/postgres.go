package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig holds pool tuning for the optional Postgres-backed store.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sensible pool defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore implements Store against Postgres (or CockroachDB, which
// speaks the same wire protocol), for deployments that already run one
// instead of the default embedded SQLite file.
type PostgresStore struct {
	db *sql.DB
}

const createEventsTablePG = `
CREATE TABLE IF NOT EXISTS workflow_events (
	task_id     TEXT NOT NULL,
	event_id    TEXT NOT NULL,
	seq_num     BIGSERIAL,
	phase       TEXT NOT NULL,
	run_id      TEXT,
	agent_id    TEXT,
	summary     TEXT,
	payload     JSONB,
	note        TEXT,
	provider    TEXT,
	channel     TEXT,
	chat_id     TEXT,
	thread_id   TEXT,
	source      TEXT,
	detail_file TEXT,
	max_turns   INTEGER,
	created_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (task_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_workflow_events_task_seq ON workflow_events (task_id, seq_num);
CREATE INDEX IF NOT EXISTS idx_workflow_events_run ON workflow_events (run_id);
CREATE INDEX IF NOT EXISTS idx_workflow_events_agent ON workflow_events (agent_id);
CREATE INDEX IF NOT EXISTS idx_workflow_events_chat ON workflow_events (chat_id);
`

const pgEventColumns = "task_id, event_id, seq_num, phase, run_id, agent_id, summary, payload, note, provider, channel, chat_id, thread_id, source, detail_file, max_turns, created_at"

// NewPostgresStoreFromDSN opens a Postgres-backed event store.
func NewPostgresStoreFromDSN(dsn string, cfg *PostgresConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("eventlog: dsn is required")
	}
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createEventsTablePG); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases database resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, e Event) (bool, Event, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	payload := []byte(e.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO workflow_events (task_id, event_id, phase, run_id, agent_id, summary, payload, note, provider, channel, chat_id, thread_id, source, detail_file, max_turns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (task_id, event_id) DO NOTHING
		RETURNING seq_num, created_at
	`, e.TaskID, e.EventID, string(e.Phase), e.RunID, e.AgentID, e.Summary, payload, e.Note,
		e.Provider, e.Channel, e.ChatID, e.ThreadID, string(e.Source), e.DetailFile, e.MaxTurns, e.CreatedAt)

	var seq int64
	var createdAt time.Time
	if err := row.Scan(&seq, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			// Conflict: another append won the race. Fetch what's stored.
			existing, ferr := s.fetchOne(ctx, e.TaskID, e.EventID)
			if ferr != nil {
				return false, Event{}, ferr
			}
			return false, existing, nil
		}
		return false, Event{}, fmt.Errorf("eventlog: insert: %w", err)
	}
	e.SeqNum = seq
	e.CreatedAt = createdAt
	return true, e, nil
}

func (s *PostgresStore) fetchOne(ctx context.Context, taskID, eventID string) (Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pgEventColumns+` FROM workflow_events WHERE task_id = $1 AND event_id = $2`,
		taskID, eventID)
	e, err := scanPGEvent(row)
	if err != nil {
		return Event{}, fmt.Errorf("eventlog: fetch: %w", err)
	}
	return e, nil
}

// ListEvents implements Store.
func (s *PostgresStore) ListEvents(ctx context.Context, taskID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgEventColumns+` FROM workflow_events WHERE task_id = $1 ORDER BY seq_num ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: list: %w", err)
	}
	defer rows.Close()
	return scanPGEvents(rows)
}

// ListRecent implements Store.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgEventColumns+` FROM workflow_events ORDER BY seq_num DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: list recent: %w", err)
	}
	defer rows.Close()

	out, err := scanPGEvents(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Event, error) {
	where, args := pgFilterClause(f)
	query := `SELECT ` + pgEventColumns + ` FROM workflow_events` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: list filtered: %w", err)
	}
	defer rows.Close()
	return scanPGEvents(rows)
}

func pgFilterClause(f Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
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

func scanPGEvent(row rowScanner) (Event, error) {
	var e Event
	var payload []byte
	var runID, agentID, summary, note, provider, channel, chatID, threadID, source, detailFile sql.NullString
	var maxTurns sql.NullInt64
	if err := row.Scan(&e.TaskID, &e.EventID, &e.SeqNum, &e.Phase, &runID, &agentID, &summary,
		&payload, &note, &provider, &channel, &chatID, &threadID, &source, &detailFile, &maxTurns, &e.CreatedAt); err != nil {
		return Event{}, err
	}
	e.RunID = runID.String
	e.AgentID = agentID.String
	e.Summary = summary.String
	e.Payload = json.RawMessage(payload)
	e.Note = note.String
	e.Provider = provider.String
	e.Channel = channel.String
	e.ChatID = chatID.String
	e.ThreadID = threadID.String
	e.Source = Source(source.String)
	e.DetailFile = detailFile.String
	e.MaxTurns = int(maxTurns.Int64)
	return e, nil
}

func scanPGEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		e, err := scanPGEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
