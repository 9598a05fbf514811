// Package storage implements the capture daemon's row store: every
// relational table, the FTS5 lexical indices over content and file
// events, and the retention sweep. The vector index lives in a separate
// directory and is written best-effort after the row commit (see
// internal/vectorindex); this package never blocks a row write on it.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store owns the sqlite database file. Writes are serialized through mu:
// sqlite itself allows only one writer at a time, the mutex makes that
// invariant explicit at the Go level instead of surfacing as SQLITE_BUSY.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	mu     sync.Mutex

	ftsOnce sync.Once // degraded-FTS warning, logged once
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Schema creation is additive: opening a database written
// by an older build extends it without dropping data.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("storage: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA foreign_keys=ON`,
		`PRAGMA busy_timeout=5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// migrate creates tables and indices that do not exist yet.
func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS content_records (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			text        TEXT NOT NULL CHECK (length(text) > 0),
			source      TEXT NOT NULL,
			source_ref  INTEGER,
			captured_at TEXT NOT NULL,
			metadata    TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_content_source_ref
			ON content_records(source, source_ref) WHERE source_ref IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_content_captured_at
			ON content_records(captured_at)`,

		`CREATE TABLE IF NOT EXISTS entity_mentions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			content_id   INTEGER NOT NULL REFERENCES content_records(id) ON DELETE CASCADE,
			text         TEXT NOT NULL,
			kind         TEXT NOT NULL,
			span_start   INTEGER NOT NULL,
			span_end     INTEGER NOT NULL,
			source_label TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_content ON entity_mentions(content_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_kind ON entity_mentions(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_text ON entity_mentions(text)`,

		`CREATE TABLE IF NOT EXISTS screen_captures (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			captured_at     TEXT NOT NULL,
			perceptual_hash TEXT NOT NULL,
			extracted_text  TEXT NOT NULL DEFAULT '',
			active_window   TEXT NOT NULL DEFAULT '',
			active_app      TEXT NOT NULL DEFAULT '',
			metadata        TEXT NOT NULL DEFAULT '{}'
		)`,

		`CREATE TABLE IF NOT EXISTS clipboard_entries (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			captured_at     TEXT NOT NULL,
			content_hash    TEXT NOT NULL,
			text            TEXT NOT NULL,
			classified_type TEXT NOT NULL,
			source_app      TEXT NOT NULL DEFAULT '',
			metadata        TEXT NOT NULL DEFAULT '{}'
		)`,

		`CREATE TABLE IF NOT EXISTS file_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			captured_at  TEXT NOT NULL,
			file_path    TEXT NOT NULL,
			file_name    TEXT NOT NULL,
			operation    TEXT NOT NULL,
			content_hash TEXT,
			text         TEXT,
			kind         TEXT NOT NULL DEFAULT 'unknown',
			size_bytes   INTEGER NOT NULL DEFAULT 0,
			metadata     TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_file_events_path ON file_events(file_path)`,

		`CREATE TABLE IF NOT EXISTS file_versions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path    TEXT NOT NULL,
			version      INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			captured_at  TEXT NOT NULL,
			size_bytes   INTEGER NOT NULL DEFAULT 0,
			UNIQUE (file_path, content_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_file_versions_path ON file_versions(file_path, version)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS content_fts USING fts5(
			text,
			content='content_records',
			content_rowid='id'
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS file_events_fts USING fts5(
			text, file_name, file_path,
			content='file_events',
			content_rowid='id'
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			// FTS5 may be compiled out of a custom sqlite build; lexical
			// search then degrades to empty results instead of failing
			// startup.
			if strings.Contains(stmt, "USING fts5") && isMissingFTS(err) {
				s.warnFTSMissing(err)
				continue
			}
			return fmt.Errorf("exec %.40q: %w", stmt, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for read-only consumers (retrieval engine
// aggregations). Writers must go through Store methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) warnFTSMissing(err error) {
	s.ftsOnce.Do(func() {
		s.logger.Warn("fts5 unavailable, lexical search degraded to empty results",
			zap.Error(err))
	})
}

// isMissingFTS matches the errors sqlite raises when the fts5 module or
// its virtual tables are absent.
func isMissingFTS(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such module: fts5") ||
		strings.Contains(msg, "no such table: content_fts") ||
		strings.Contains(msg, "no such table: file_events_fts")
}

// Stats reports row counts and coarse age bounds across all tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{BySource: make(map[Source]int64)}

	counts := map[string]*int64{
		"content_records":   &st.ContentRecords,
		"entity_mentions":   &st.EntityMentions,
		"screen_captures":   &st.ScreenCaptures,
		"clipboard_entries": &st.ClipboardEntries,
		"file_events":       &st.FileEvents,
		"file_versions":     &st.FileVersions,
	}
	for table, dst := range counts {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(dst); err != nil {
			return Stats{}, fmt.Errorf("storage: count %s: %w", table, err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM content_records GROUP BY source`)
	if err != nil {
		return Stats{}, fmt.Errorf("storage: count by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src Source
		var n int64
		if err := rows.Scan(&src, &n); err != nil {
			return Stats{}, err
		}
		st.BySource[src] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	var oldest, newest sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT MIN(captured_at), MAX(captured_at) FROM content_records`).Scan(&oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("storage: age bounds: %w", err)
	}
	if t, ok := parseTime(oldest); ok {
		st.OldestContent = &t
	}
	if t, ok := parseTime(newest); ok {
		st.NewestContent = &t
	}

	var path string
	if err := s.db.QueryRowContext(ctx,
		`SELECT file FROM pragma_database_list WHERE name='main'`).Scan(&path); err == nil && path != "" {
		if info, err := os.Stat(path); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}
	return st, nil
}

func parseTime(v sql.NullString) (time.Time, bool) {
	if !v.Valid || v.String == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// timeLayout is the canonical captured_at encoding: RFC 3339 UTC with a
// fixed-width fractional second. Fixed width keeps lexicographic order on
// the encoded string identical to chronological order, which the
// timeline and retention queries rely on (RFC3339Nano trims trailing
// zeros and breaks that property).
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeMetadata(m Metadata) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(raw string) Metadata {
	if raw == "" || raw == "{}" {
		return nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
