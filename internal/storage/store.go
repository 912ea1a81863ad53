// Package storage persists session metadata and cached reports in SQLite
// and owns the exported audio files on disk.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no session row exists for an identifier.
var ErrNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	created_at       TEXT NOT NULL,
	closed_at        TEXT,
	export_path      TEXT,
	duration_seconds REAL,
	bytes_received   INTEGER NOT NULL DEFAULT 0,
	chunks_analyzed  INTEGER NOT NULL DEFAULT 0,
	report_json      TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
`

// SessionRecord is one persisted session row.
type SessionRecord struct {
	ID              string
	CreatedAt       time.Time
	ClosedAt        time.Time
	ExportPath      string
	DurationSeconds float64
	BytesReceived   int
	ChunksAnalyzed  int
}

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateSession records a new session at connection accept time.
func (s *Store) CreateSession(id string) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, created_at) VALUES (?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FinalizeSession records the export location and stream totals when a
// session closes with audio.
func (s *Store) FinalizeSession(id, exportPath string, duration float64, bytesReceived, chunksAnalyzed int) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET closed_at = ?, export_path = ?, duration_seconds = ?, bytes_received = ?, chunks_analyzed = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), exportPath, duration, bytesReceived, chunksAnalyzed, id)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession loads one session row. Sessions that closed without audio have
// an empty ExportPath.
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, COALESCE(closed_at, ''), COALESCE(export_path, ''),
		        COALESCE(duration_seconds, 0), bytes_received, chunks_analyzed
		 FROM sessions WHERE id = ?`, id)

	var rec SessionRecord
	var created, closed string
	err := row.Scan(&rec.ID, &created, &closed, &rec.ExportPath, &rec.DurationSeconds, &rec.BytesReceived, &rec.ChunksAnalyzed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if closed != "" {
		rec.ClosedAt, _ = time.Parse(time.RFC3339Nano, closed)
	}
	return &rec, nil
}

// SaveReport caches the rendered report JSON so repeat requests skip the
// decode/transcribe/critique pass.
func (s *Store) SaveReport(id string, report []byte) error {
	res, err := s.db.Exec(`UPDATE sessions SET report_json = ? WHERE id = ?`, string(report), id)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Report returns the cached report JSON, or ErrNotFound when the session is
// unknown or no report was cached yet.
func (s *Store) Report(id string) ([]byte, error) {
	var report sql.NullString
	err := s.db.QueryRow(`SELECT report_json FROM sessions WHERE id = ?`, id).Scan(&report)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if !report.Valid || report.String == "" {
		return nil, ErrNotFound
	}
	return []byte(report.String), nil
}
