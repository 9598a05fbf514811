package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertScreenCapture appends a screen capture row. If the perceptual
// hash equals the immediately preceding row's, the insert is rejected
// with ErrDuplicateHash (the screen has not visibly changed).
func (s *Store) InsertScreenCapture(ctx context.Context, c ScreenCapture) (int64, error) {
	meta, err := encodeMetadata(c.Metadata)
	if err != nil {
		return 0, err
	}
	if c.CapturedAt.IsZero() {
		c.CapturedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last string
	err = tx.QueryRowContext(ctx,
		`SELECT perceptual_hash FROM screen_captures ORDER BY id DESC LIMIT 1`).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("storage: last screen hash: %w", err)
	}
	if err == nil && last == c.PerceptualHash {
		return 0, ErrDuplicateHash
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO screen_captures
		   (captured_at, perceptual_hash, extracted_text, active_window, active_app, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(c.CapturedAt), c.PerceptualHash, c.ExtractedText,
		c.ActiveWindow, c.ActiveApp, meta)
	if err != nil {
		return 0, fmt.Errorf("storage: insert screen capture: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: commit screen capture: %w", err)
	}
	return id, nil
}

// InsertClipboardEntry appends a clipboard row, rejecting a content hash
// equal to the immediately preceding row's with ErrDuplicateHash.
func (s *Store) InsertClipboardEntry(ctx context.Context, e ClipboardEntry) (int64, error) {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return 0, err
	}
	if e.CapturedAt.IsZero() {
		e.CapturedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last string
	err = tx.QueryRowContext(ctx,
		`SELECT content_hash FROM clipboard_entries ORDER BY id DESC LIMIT 1`).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("storage: last clipboard hash: %w", err)
	}
	if err == nil && last == e.ContentHash {
		return 0, ErrDuplicateHash
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO clipboard_entries
		   (captured_at, content_hash, text, classified_type, source_app, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(e.CapturedAt), e.ContentHash, e.Text, e.ClassifiedType, e.SourceApp, meta)
	if err != nil {
		return 0, fmt.Errorf("storage: insert clipboard entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: commit clipboard entry: %w", err)
	}
	return id, nil
}

// InsertFileEvent appends a file event row plus, for a modified event
// with a content hash not yet seen for that path, the next FileVersion
// in the path's chain. Both writes share one transaction. The returned
// version is 0 when no version row was written (creates, deletes, and
// repeated hashes).
func (s *Store) InsertFileEvent(ctx context.Context, ev FileEvent) (id int64, version int, err error) {
	meta, err := encodeMetadata(ev.Metadata)
	if err != nil {
		return 0, 0, err
	}
	if ev.CapturedAt.IsZero() {
		ev.CapturedAt = time.Now()
	}
	if ev.Kind == "" {
		ev.Kind = FileKindUnknown
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO file_events
		   (captured_at, file_path, file_name, operation, content_hash, text, kind, size_bytes, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(ev.CapturedAt), ev.FilePath, ev.FileName, ev.Operation,
		ev.ContentHash, ev.Text, ev.Kind, ev.SizeBytes, meta)
	if err != nil {
		return 0, 0, fmt.Errorf("storage: insert file event: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, 0, err
	}

	var ftsText string
	if ev.Text != nil {
		ftsText = *ev.Text
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO file_events_fts (rowid, text, file_name, file_path) VALUES (?, ?, ?, ?)`,
		id, ftsText, ev.FileName, ev.FilePath); err != nil {
		if !isMissingFTS(err) {
			return 0, 0, fmt.Errorf("storage: insert file event fts: %w", err)
		}
		s.warnFTSMissing(err)
	}

	if ev.Operation == FileModified && ev.ContentHash != nil {
		version, err = s.appendFileVersion(ctx, tx, ev)
		if err != nil {
			return 0, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("storage: commit file event: %w", err)
	}
	return id, version, nil
}

// appendFileVersion writes version max+1 for the path unless this
// content hash already has a version row there.
func (s *Store) appendFileVersion(ctx context.Context, tx *sql.Tx, ev FileEvent) (int, error) {
	var existing int
	err := tx.QueryRowContext(ctx,
		`SELECT version FROM file_versions WHERE file_path = ? AND content_hash = ?`,
		ev.FilePath, *ev.ContentHash).Scan(&existing)
	switch {
	case err == nil:
		return 0, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("storage: version lookup: %w", err)
	}

	var maxVersion int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM file_versions WHERE file_path = ?`,
		ev.FilePath).Scan(&maxVersion); err != nil {
		return 0, fmt.Errorf("storage: max version: %w", err)
	}

	next := maxVersion + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO file_versions (file_path, version, content_hash, captured_at, size_bytes)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.FilePath, next, *ev.ContentHash, formatTime(ev.CapturedAt), ev.SizeBytes); err != nil {
		return 0, fmt.Errorf("storage: insert file version: %w", err)
	}
	return next, nil
}

// FileVersions returns a path's version chain in insertion order.
func (s *Store) FileVersions(ctx context.Context, path string) ([]FileVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_path, version, content_hash, captured_at, size_bytes
		 FROM file_versions WHERE file_path = ? ORDER BY version ASC`, path)
	if err != nil {
		return nil, fmt.Errorf("storage: file versions: %w", err)
	}
	defer rows.Close()

	var out []FileVersion
	for rows.Next() {
		var v FileVersion
		var capturedAt string
		if err := rows.Scan(&v.ID, &v.FilePath, &v.Version, &v.ContentHash, &capturedAt, &v.SizeBytes); err != nil {
			return nil, err
		}
		v.CapturedAt, _ = time.Parse(time.RFC3339Nano, capturedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

// MissingContentRefs returns the ids of rows in a source table that have
// no corresponding content_records row, oldest first. Used by the resync
// path to backfill the semantic layer after a crash between the
// source-table write and the content mirror.
func (s *Store) MissingContentRefs(ctx context.Context, source Source, limit int) ([]int64, error) {
	var table string
	switch source {
	case SourceScreen:
		table = "screen_captures"
	case SourceClipboard:
		table = "clipboard_entries"
	case SourceFile:
		table = "file_events"
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT t.id FROM %s t
		 WHERE NOT EXISTS (
		   SELECT 1 FROM content_records c WHERE c.source = ? AND c.source_ref = t.id
		 )
		 ORDER BY t.id ASC LIMIT ?`, table), source, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: missing refs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetScreenCapture returns one screen capture row by id.
func (s *Store) GetScreenCapture(ctx context.Context, id int64) (ScreenCapture, error) {
	var c ScreenCapture
	var capturedAt, meta string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, captured_at, perceptual_hash, extracted_text, active_window, active_app, metadata
		 FROM screen_captures WHERE id = ?`, id).
		Scan(&c.ID, &capturedAt, &c.PerceptualHash, &c.ExtractedText, &c.ActiveWindow, &c.ActiveApp, &meta)
	if err == sql.ErrNoRows {
		return ScreenCapture{}, ErrNotFound
	}
	if err != nil {
		return ScreenCapture{}, err
	}
	c.CapturedAt, _ = time.Parse(time.RFC3339Nano, capturedAt)
	c.Metadata = decodeMetadata(meta)
	return c, nil
}

// GetClipboardEntry returns one clipboard row by id.
func (s *Store) GetClipboardEntry(ctx context.Context, id int64) (ClipboardEntry, error) {
	var e ClipboardEntry
	var capturedAt, meta string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, captured_at, content_hash, text, classified_type, source_app, metadata
		 FROM clipboard_entries WHERE id = ?`, id).
		Scan(&e.ID, &capturedAt, &e.ContentHash, &e.Text, &e.ClassifiedType, &e.SourceApp, &meta)
	if err == sql.ErrNoRows {
		return ClipboardEntry{}, ErrNotFound
	}
	if err != nil {
		return ClipboardEntry{}, err
	}
	e.CapturedAt, _ = time.Parse(time.RFC3339Nano, capturedAt)
	e.Metadata = decodeMetadata(meta)
	return e, nil
}

// GetFileEvent returns one file event row by id.
func (s *Store) GetFileEvent(ctx context.Context, id int64) (FileEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, captured_at, file_path, file_name, operation, content_hash, text, kind, size_bytes, metadata
		 FROM file_events WHERE id = ?`, id)
	if err != nil {
		return FileEvent{}, err
	}
	defer rows.Close()
	events, err := scanFileEvents(rows)
	if err != nil {
		return FileEvent{}, err
	}
	if len(events) == 0 {
		return FileEvent{}, ErrNotFound
	}
	return events[0], nil
}

// RecentClipboardEntries returns the newest clipboard rows, optionally
// filtered by classified type.
func (s *Store) RecentClipboardEntries(ctx context.Context, classifiedType ClipboardType, limit int) ([]ClipboardEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `SELECT id, captured_at, content_hash, text, classified_type, source_app, metadata
	      FROM clipboard_entries`
	var args []any
	if classifiedType != "" {
		q += ` WHERE classified_type = ?`
		args = append(args, classifiedType)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: recent clipboard: %w", err)
	}
	defer rows.Close()

	var out []ClipboardEntry
	for rows.Next() {
		var e ClipboardEntry
		var capturedAt, meta string
		if err := rows.Scan(&e.ID, &capturedAt, &e.ContentHash, &e.Text,
			&e.ClassifiedType, &e.SourceApp, &meta); err != nil {
			return nil, err
		}
		e.CapturedAt, _ = time.Parse(time.RFC3339Nano, capturedAt)
		e.Metadata = decodeMetadata(meta)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanFileEvents(rows *sql.Rows) ([]FileEvent, error) {
	var out []FileEvent
	for rows.Next() {
		var ev FileEvent
		var capturedAt, meta string
		var hash, text sql.NullString
		if err := rows.Scan(&ev.ID, &capturedAt, &ev.FilePath, &ev.FileName, &ev.Operation,
			&hash, &text, &ev.Kind, &ev.SizeBytes, &meta); err != nil {
			return nil, err
		}
		ev.CapturedAt, _ = time.Parse(time.RFC3339Nano, capturedAt)
		ev.Metadata = decodeMetadata(meta)
		if hash.Valid {
			ev.ContentHash = &hash.String
		}
		if text.Valid {
			s := text.String
			ev.Text = &s
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
