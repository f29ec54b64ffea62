/*
Package sqlite persists cases and call telemetry in a SQLite database.

One DB file holds three tables: cases (the CaseStore), calls (one row per
conversation, opened by the start record and closed by the completion record)
and state_transitions (one row per TurnRecord). The driver is the pure-Go
modernc.org/sqlite, so no cgo toolchain is needed.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/intake/internal/logging"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB is a handle on the intake database.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) { d.logger = logger }
}

// WithClock sets the clock used to stamp rows.
func WithClock(clock func() time.Time) Option {
	return func(d *DB) { d.clock = clock }
}

// Open opens (creating if needed) the database at path and applies the schema.
// Parent directories are created if needed.
func Open(path string, opts ...Option) (*DB, error) {
	d := &DB{
		logger: logging.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	d.db = db
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	d.logger.Info("SQLite database initialized", "path", path)
	return d, nil
}

func (d *DB) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cases (
			id TEXT PRIMARY KEY,
			case_type TEXT NOT NULL,
			animal_type TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			reporter_name TEXT NOT NULL DEFAULT '',
			reporter_contact TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			appointment TEXT,
			details_json TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_cases_contact ON cases(reporter_contact COLLATE NOCASE);
		CREATE INDEX IF NOT EXISTS idx_cases_type_status ON cases(case_type, status);
		CREATE INDEX IF NOT EXISTS idx_cases_appointment ON cases(appointment);

		CREATE TABLE IF NOT EXISTS calls (
			call_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT,
			initial_state TEXT NOT NULL,
			final_state TEXT,
			completion_status TEXT NOT NULL,
			duration_seconds INTEGER,
			turns INTEGER NOT NULL DEFAULT 0,
			llm_tokens INTEGER NOT NULL DEFAULT 0,

			CHECK (completion_status IN ('in_progress', 'completed', 'error', 'abandoned'))
		);

		CREATE INDEX IF NOT EXISTS idx_calls_session ON calls(session_id);
		CREATE INDEX IF NOT EXISTS idx_calls_start ON calls(start_time);

		CREATE TABLE IF NOT EXISTS state_transitions (
			call_id TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			from_state TEXT,
			to_state TEXT NOT NULL,
			transition_type TEXT NOT NULL,
			user_input TEXT,
			agent_response TEXT,
			context_snapshot TEXT,
			context_updates TEXT,
			llm_model TEXT,
			llm_tokens_used INTEGER,
			processing_time_ms INTEGER,
			PRIMARY KEY (call_id, sequence_number),
			FOREIGN KEY (call_id) REFERENCES calls(call_id) ON DELETE CASCADE
		);
	`
	_, err := d.db.Exec(schema)
	return err
}

// Ping checks the database connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) now() time.Time {
	return d.clock().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
