// Package store persists chat messages and scheduled jobs in SQLite.
// The message log is append-only and indexed by (room_id, timestamp);
// rows are never mutated or deleted by the bot.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/talksum/talksum/pkg/talksum/scheduler"
)

// Message is one stored utterance or synthesized activity description.
type Message struct {
	Timestamp time.Time
	RoomID    string
	Actor     string
	Message   string
}

// Store wraps the SQLite connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	room_id   TEXT NOT NULL,
	actor     TEXT NOT NULL,
	message   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_room_time
	ON chat_messages (room_id, timestamp);

CREATE TABLE IF NOT EXISTS scheduled_jobs (
	id          TEXT PRIMARY KEY,
	room_id     TEXT NOT NULL,
	room_name   TEXT NOT NULL,
	hour        INTEGER NOT NULL,
	minute      INTEGER NOT NULL,
	created_at  DATETIME NOT NULL,
	last_run_at DATETIME,
	last_error  TEXT NOT NULL DEFAULT '',
	run_count   INTEGER NOT NULL DEFAULT 0
);
`

// Open opens or creates the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "./data/talksum.db"
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "store")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append adds one message to the room's log.
func (s *Store) Append(ctx context.Context, msg Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (timestamp, room_id, actor, message) VALUES (?, ?, ?, ?)`,
		msg.Timestamp, msg.RoomID, msg.Actor, msg.Message,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Since returns the room's messages with timestamp >= since, ascending by
// timestamp with insertion order breaking ties.
func (s *Store) Since(ctx context.Context, roomID string, since time.Time) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, room_id, actor, message
		 FROM chat_messages
		 WHERE room_id = ? AND timestamp >= ?
		 ORDER BY timestamp ASC, id ASC`,
		roomID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Timestamp, &m.RoomID, &m.Actor, &m.Message); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}

// ── scheduler.Storage ──

// SaveJob inserts or updates a scheduled job.
func (s *Store) SaveJob(job *scheduler.Job) error {
	var lastRun any
	if job.LastRunAt != nil {
		lastRun = *job.LastRunAt
	}
	_, err := s.db.Exec(
		`INSERT INTO scheduled_jobs (id, room_id, room_name, hour, minute, created_at, last_run_at, last_error, run_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_error  = excluded.last_error,
			run_count   = excluded.run_count`,
		job.ID, job.RoomID, job.RoomName, job.Hour, job.Minute,
		job.CreatedAt, lastRun, job.LastError, job.RunCount,
	)
	if err != nil {
		return fmt.Errorf("save job %q: %w", job.ID, err)
	}
	return nil
}

// DeleteJob removes a scheduled job.
func (s *Store) DeleteJob(id string) error {
	if _, err := s.db.Exec(`DELETE FROM scheduled_jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete job %q: %w", id, err)
	}
	return nil
}

// LoadJobs returns all persisted jobs.
func (s *Store) LoadJobs() ([]*scheduler.Job, error) {
	rows, err := s.db.Query(
		`SELECT id, room_id, room_name, hour, minute, created_at, last_run_at, last_error, run_count
		 FROM scheduled_jobs`)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var result []*scheduler.Job
	for rows.Next() {
		var (
			job     scheduler.Job
			lastRun sql.NullTime
		)
		if err := rows.Scan(&job.ID, &job.RoomID, &job.RoomName, &job.Hour, &job.Minute,
			&job.CreatedAt, &lastRun, &job.LastError, &job.RunCount); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if lastRun.Valid {
			t := lastRun.Time
			job.LastRunAt = &t
		}
		result = append(result, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return result, nil
}
