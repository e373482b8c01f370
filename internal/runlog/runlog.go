// Package runlog keeps an append-only SQLite history of quote attempts,
// independent of the result store file.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/freight-quotes/internal/model"
)

// Entry is one logged attempt.
type Entry struct {
	ID         string
	RunID      string
	Carrier    string
	Key        string
	Status     model.Status
	Code       string // error classification, empty on success
	Message    string
	Retries    int
	Charges    int
	Target     time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Values     map[string]string
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	RunID   string
	Carrier string
	Key     string
	Status  model.Status
	Since   time.Time
	Limit   int
	Offset  int
}

// Log is the SQLite-backed attempt log.
type Log struct {
	db *sql.DB
}

// Open opens (or creates) the log at path and configures WAL mode.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	return &Log{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS attempts (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	carrier     TEXT NOT NULL,
	route_key   TEXT NOT NULL,
	status      TEXT NOT NULL,
	code        TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	retries     INTEGER NOT NULL DEFAULT 0,
	charges     INTEGER NOT NULL DEFAULT 0,
	target      DATETIME,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	vals        TEXT
);

CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON attempts(run_id);
CREATE INDEX IF NOT EXISTS idx_attempts_carrier ON attempts(carrier);
CREATE INDEX IF NOT EXISTS idx_attempts_route_key ON attempts(route_key);
CREATE INDEX IF NOT EXISTS idx_attempts_finished_at ON attempts(finished_at);
`

// Migrate creates the schema.
func (l *Log) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "runlog: migrate")
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

// NewRunID returns an identifier grouping the attempts of one run.
func NewRunID() string {
	return uuid.New().String()
}

// Append records e, assigning an ID when it has none.
func (l *Log) Append(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	var vals any
	if len(e.Values) > 0 {
		b, err := json.Marshal(e.Values)
		if err != nil {
			return "", eris.Wrap(err, "runlog: marshal values")
		}
		vals = string(b)
	}
	var target any
	if !e.Target.IsZero() {
		target = e.Target.UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO attempts (id, run_id, carrier, route_key, status, code, message, retries, charges, target, started_at, finished_at, vals)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Carrier, e.Key, string(e.Status), e.Code, e.Message, e.Retries, e.Charges,
		target, e.StartedAt.UTC(), e.FinishedAt.UTC(), vals,
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: insert attempt %s", e.Key)
	}
	return e.ID, nil
}

// List returns matching entries, newest first.
func (l *Log) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT id, run_id, carrier, route_key, status, code, message, retries, charges, target, started_at, finished_at, vals
		FROM attempts WHERE 1=1`
	var args []any

	if f.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, f.RunID)
	}
	if f.Carrier != "" {
		query += ` AND carrier = ?`
		args = append(args, f.Carrier)
	}
	if f.Key != "" {
		query += ` AND route_key = ?`
		args = append(args, f.Key)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		query += ` AND finished_at >= ?`
		args = append(args, f.Since.UTC())
	}
	query += ` ORDER BY finished_at DESC, id`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list attempts")
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "runlog: list attempts iterate")
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e      Entry
		status string
		target sql.NullTime
		vals   sql.NullString
	)
	err := rows.Scan(&e.ID, &e.RunID, &e.Carrier, &e.Key, &status, &e.Code, &e.Message,
		&e.Retries, &e.Charges, &target, &e.StartedAt, &e.FinishedAt, &vals)
	if err != nil {
		return Entry{}, eris.Wrap(err, "runlog: scan attempt")
	}
	e.Status = model.Status(status)
	if target.Valid {
		e.Target = target.Time
	}
	if vals.Valid && vals.String != "" {
		if err := json.Unmarshal([]byte(vals.String), &e.Values); err != nil {
			return Entry{}, eris.Wrap(err, "runlog: unmarshal values")
		}
	}
	return e, nil
}
