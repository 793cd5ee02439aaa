// Package eventlog optionally persists a connection detail record per
// attach/detach/error event a Session reports. Disabled sessions use
// the zero-cost NoopRecorder; enabling persistence never changes
// engine semantics, only observability.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Kind identifies what happened to a device ID.
type Kind string

const (
	Attached Kind = "attached"
	Detached Kind = "detached"
	Errored  Kind = "errored"
)

// Event is one connection detail record.
type Event struct {
	ID        int64
	DeviceID  string
	SSRC      uint32
	Kind      Kind
	Detail    string
	Timestamp time.Time
}

// Recorder persists connection lifecycle events. NoopRecorder satisfies
// it with zero overhead for sessions that don't enable eventlog.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	Close() error
}

// NoopRecorder discards every event. cmd/rtpmidid falls back to it when
// the SQLite recorder cannot be opened.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, Event) error { return nil }
func (NoopRecorder) Close() error                         { return nil }

// SQLiteRecorder persists events to a local SQLite file, one row per
// event.
type SQLiteRecorder struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at dataDir/rtpmidi-events.db
// in WAL mode and ensures its schema exists.
func Open(dataDir string) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("eventlog: creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "rtpmidi-events.db")
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", dbPath)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: opening database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("eventlog: pinging database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS connection_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		ssrc INTEGER NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		ts DATETIME NOT NULL
	)`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("eventlog: creating schema: %w", err)
	}

	slog.Info("eventlog opened", "path", dbPath)
	return &SQLiteRecorder{db: sqlDB}, nil
}

// Record inserts one connection detail record.
func (r *SQLiteRecorder) Record(ctx context.Context, ev Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connection_events (device_id, ssrc, kind, detail, ts) VALUES (?, ?, ?, ?, ?)`,
		ev.DeviceID, ev.SSRC, string(ev.Kind), ev.Detail, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("eventlog: inserting event: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
