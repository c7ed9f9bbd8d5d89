// Package store provides a SQLite-backed answer log. Every answered request
// is recorded as a single row — which tier answered, whether it degraded,
// and how long it took — so operators can audit answer quality after the
// fact. The log holds no conversational state: sessions are recorded purely
// as labels and never influence later answers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Record is one answered request.
type Record struct {
	// SessionID is the caller-supplied session label. May be empty.
	SessionID string
	// ClientID identifies the rate-limited client (typically the remote IP).
	ClientID string
	// Question is the user question as received.
	Question string
	// Tier is the pipeline tier that produced the answer (preset/rag/degraded).
	Tier string
	// Success is false for degraded answers.
	Success bool
	// Sources lists the origins that contributed to the answer.
	Sources []string
	// Latency is how long the pipeline took to answer.
	Latency time.Duration
	// CreatedAt is when the record was persisted.
	CreatedAt time.Time
}

// AnswerLog persists answered requests. Implementations must be safe for
// concurrent use.
type AnswerLog interface {
	// Append persists a single answered request.
	Append(ctx context.Context, rec Record) error
	// Recent returns the most recent n records, newest first.
	Recent(ctx context.Context, n int) ([]Record, error)
	// TierCounts returns the number of recorded answers per tier.
	TierCounts(ctx context.Context) (map[string]int64, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteLog is an AnswerLog backed by a local SQLite database.
type SQLiteLog struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the answer log database.
// It resolves to ~/.laborsaver/answers.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".laborsaver")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "answers.db"), nil
}

// Open opens (or creates) a SQLiteLog at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteLog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteLog{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteLog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS answers (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT    NOT NULL DEFAULT '',
    client_id   TEXT    NOT NULL,
    question    TEXT    NOT NULL,
    tier        TEXT    NOT NULL CHECK(tier IN ('preset','rag','degraded')),
    success     INTEGER NOT NULL,
    sources     TEXT    NOT NULL DEFAULT '',
    latency_ms  INTEGER NOT NULL,
    created_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_answers_created
    ON answers (created_at);
CREATE INDEX IF NOT EXISTS idx_answers_tier
    ON answers (tier);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// sourceSeparator joins the sources list into a single column. U+001F (unit
// separator) cannot appear in regulation source names.
const sourceSeparator = "\x1f"

// Append persists a single answered request.
func (s *SQLiteLog) Append(ctx context.Context, rec Record) error {
	const q = `INSERT INTO answers (session_id, client_id, question, tier, success, sources, latency_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	success := 0
	if rec.Success {
		success = 1
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, q,
		rec.SessionID,
		rec.ClientID,
		rec.Question,
		rec.Tier,
		success,
		strings.Join(rec.Sources, sourceSeparator),
		rec.Latency.Milliseconds(),
		createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n records, newest first.
func (s *SQLiteLog) Recent(ctx context.Context, n int) ([]Record, error) {
	const q = `
SELECT session_id, client_id, question, tier, success, sources, latency_ms, created_at
FROM   answers
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		var success int
		var sources string
		var latencyMS, ts int64
		if err := rows.Scan(&r.SessionID, &r.ClientID, &r.Question, &r.Tier, &success, &sources, &latencyMS, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		r.Success = success == 1
		if sources != "" {
			r.Sources = strings.Split(sources, sourceSeparator)
		}
		r.Latency = time.Duration(latencyMS) * time.Millisecond
		r.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return recs, nil
}

// TierCounts returns the number of recorded answers per tier.
func (s *SQLiteLog) TierCounts(ctx context.Context) (map[string]int64, error) {
	const q = `SELECT tier, COUNT(*) FROM answers GROUP BY tier`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: tier counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var tier string
		var n int64
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("store: tier counts scan: %w", err)
		}
		counts[tier] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: tier counts rows: %w", err)
	}
	return counts, nil
}

// Close releases the database connection pool.
func (s *SQLiteLog) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
