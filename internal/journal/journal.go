// Package journal persists publish and unpublish attempts in SQLite.
// It is an audit log only; scans never read from it.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/dispatch/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transitions (
	id          TEXT PRIMARY KEY,
	op          TEXT NOT NULL,
	slug        TEXT NOT NULL,
	source_path TEXT NOT NULL DEFAULT '',
	target_path TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	checksum    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_slug ON transitions(slug);
CREATE INDEX IF NOT EXISTS idx_transitions_started ON transitions(started_at);
`

// Store records and lists transitions.
type Store interface {
	Record(t *models.Transition) error
	Recent(limit int) ([]models.Transition, error)
	BySlug(slug string, limit int) ([]models.Transition, error)
	Close() error
}

// Verify *Journal satisfies Store at compile time.
var _ Store = (*Journal)(nil)

// Journal wraps a sql.DB holding the transitions table.
type Journal struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Journal, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &Journal{conn: conn}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

// Record appends t, assigning an ID when it has none.
func (j *Journal) Record(t *models.Transition) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.FinishedAt.IsZero() {
		t.FinishedAt = time.Now()
	}
	_, err := j.conn.Exec(`
		INSERT INTO transitions
			(id, op, slug, source_path, target_path, url, checksum, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, string(t.Op), t.Slug, t.SourcePath, t.TargetPath, t.URL, t.Checksum,
		t.Status, t.Error, t.StartedAt.UTC(), t.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns the latest transitions, newest first. limit <= 0 means all.
func (j *Journal) Recent(limit int) ([]models.Transition, error) {
	return j.query(`SELECT `+columns+` FROM transitions ORDER BY started_at DESC, rowid DESC LIMIT ?`, sqlLimit(limit))
}

// BySlug returns the transitions for one slug, newest first.
func (j *Journal) BySlug(slug string, limit int) ([]models.Transition, error) {
	return j.query(`SELECT `+columns+` FROM transitions WHERE slug = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`, slug, sqlLimit(limit))
}

const columns = `id, op, slug, source_path, target_path, url, checksum, status, error, started_at, finished_at`

func (j *Journal) query(q string, args ...any) ([]models.Transition, error) {
	rows, err := j.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	out := []models.Transition{}
	for rows.Next() {
		var t models.Transition
		var op string
		if err := rows.Scan(&t.ID, &op, &t.Slug, &t.SourcePath, &t.TargetPath, &t.URL,
			&t.Checksum, &t.Status, &t.Error, &t.StartedAt, &t.FinishedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		t.Op = models.Operation(op)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SQLite treats a negative LIMIT as unbounded.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
