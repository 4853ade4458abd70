// Package store persists scraped addresses and bulk-run summaries to a
// local SQLite database. The resilience/bulk core never touches it; the
// application layer hands results over after each run.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Email record statuses.
const (
	StatusFound  = "found"
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// EmailRecord is one persisted address.
type EmailRecord struct {
	ID        string
	Address   string
	SourceURL string
	Status    string
	FoundAt   time.Time
	SentAt    time.Time // zero until the address has been mailed
	LastError string
}

// RunSummary is one persisted bulk-run result.
type RunSummary struct {
	ID         string
	Kind       string // "scrape" or "send"
	Total      int
	Succeeded  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS emails (
	id          TEXT PRIMARY KEY,
	address     TEXT NOT NULL,
	source_url  TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'found',
	found_at    TIMESTAMP NOT NULL,
	sent_at     TIMESTAMP,
	last_error  TEXT NOT NULL DEFAULT '',
	UNIQUE(address, source_url)
);
CREATE INDEX IF NOT EXISTS idx_emails_status ON emails(status);

CREATE TABLE IF NOT EXISTS bulk_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	total       INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bulk_runs_kind ON bulk_runs(kind, started_at);
`

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=10000&_foreign_keys=1"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite writes need a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveEmails inserts records, ignoring addresses already known for the
// same source.
func (s *Store) SaveEmails(ctx context.Context, records []EmailRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO emails (id, address, source_url, status, found_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		status := r.Status
		if status == "" {
			status = StatusFound
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Address, r.SourceURL, status, r.FoundAt.UTC(), r.LastError); err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.Address, err)
		}
	}

	return tx.Commit()
}

// MarkSent updates an address's delivery status. A non-empty errMsg
// marks it failed instead.
func (s *Store) MarkSent(ctx context.Context, address string, sentAt time.Time, errMsg string) error {
	status := StatusSent
	if errMsg != "" {
		status = StatusFailed
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE emails SET status = ?, sent_at = ?, last_error = ? WHERE address = ?`,
		status, sentAt.UTC(), errMsg, address)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", address, err)
	}
	return nil
}

// ListEmails returns records with the given status, newest first. An
// empty status returns everything.
func (s *Store) ListEmails(ctx context.Context, status string, limit int) ([]EmailRecord, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `SELECT id, address, source_url, status, found_at, sent_at, last_error
		FROM emails`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY found_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	var out []EmailRecord
	for rows.Next() {
		var r EmailRecord
		var sentAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Address, &r.SourceURL, &r.Status, &r.FoundAt, &sentAt, &r.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan email row: %w", err)
		}
		if sentAt.Valid {
			r.SentAt = sentAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveRun persists a bulk-run summary.
func (s *Store) SaveRun(ctx context.Context, run RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bulk_runs (id, kind, total, succeeded, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Total, run.Succeeded, run.Failed,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns run summaries for a kind, newest first. An empty kind
// returns everything.
func (s *Store) ListRuns(ctx context.Context, kind string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, kind, total, succeeded, failed, started_at, finished_at FROM bulk_runs`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Kind, &r.Total, &r.Succeeded, &r.Failed, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
