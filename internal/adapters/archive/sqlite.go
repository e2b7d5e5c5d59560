// Package archive keeps a durable copy of accepted events in SQLite so the
// in-memory store can be rebuilt after a restart.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/pkg/metrics"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLiteArchive stores events as JSON rows ordered by insertion.
type SQLiteArchive struct {
	db     *sql.DB
	closed atomic.Bool
}

// Open opens (or creates) the archive at path.
func Open(ctx context.Context, path string) (*SQLiteArchive, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// SQLite serializes writers; one connection keeps :memory: databases coherent too.
	db.SetMaxOpenConns(1)

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteArchive{db: db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS events(
	  id         INTEGER PRIMARY KEY,
	  ts_unix_ms INTEGER NOT NULL,
	  session_id TEXT    NOT NULL,
	  form_id    TEXT,
	  event_type TEXT    NOT NULL,
	  data_json  TEXT    NOT NULL CHECK (json_valid(data_json))
	);
	CREATE INDEX IF NOT EXISTS idx_events_form ON events(form_id);
	CREATE INDEX IF NOT EXISTS idx_events_ts   ON events(ts_unix_ms);
	`)
	if err != nil {
		return fmt.Errorf("failed to create archive tables: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (a *SQLiteArchive) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.db.Close()
}

// Save archives a single event.
func (a *SQLiteArchive) Save(ctx context.Context, ev model.Event) error {
	return a.SaveBatch(ctx, []model.Event{ev})
}

// SaveBatch archives events in one transaction, preserving their order.
func (a *SQLiteArchive) SaveBatch(ctx context.Context, events []model.Event) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events(ts_unix_ms, session_id, form_id, event_type, data_json) VALUES(?,?,?,?,json(?))`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		var form any
		if ev.FormID != "" {
			form = ev.FormID
		}
		if _, err := stmt.ExecContext(ctx, ev.Timestamp.UnixMilli(), ev.SessionID, form, string(ev.EventType), string(data)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	for range events {
		metrics.RecordArchiveWrite()
	}
	return nil
}

// Recent returns up to limit of the most recently archived events, oldest first.
// A non-positive limit returns nothing.
func (a *SQLiteArchive) Recent(ctx context.Context, limit int) ([]model.Event, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	out := make([]model.Event, 0)
	if limit <= 0 {
		return out, nil
	}

	rows, err := a.db.QueryContext(ctx, `
	SELECT data_json FROM (
	  SELECT id, data_json FROM events ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode archived event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return out, nil
}

// Count returns the number of archived events.
func (a *SQLiteArchive) Count(ctx context.Context) (int, error) {
	if a.closed.Load() {
		return 0, ErrClosed
	}
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Clear removes every archived event.
func (a *SQLiteArchive) Clear(ctx context.Context) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	return nil
}
