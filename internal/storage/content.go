package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ContentInput is everything AddContent needs to mirror an observation
// into the semantic layer. Mentions are persisted in the same
// transaction as the content row; their ContentID fields are ignored and
// rewritten to the new row's id.
type ContentInput struct {
	Text       string
	Source     Source
	SourceRef  *int64
	CapturedAt time.Time
	Metadata   Metadata
	Mentions   []EntityMention
}

// AddContent inserts a ContentRecord plus its FTS row and entity
// mentions in one transaction and returns the assigned id.
//
// Re-ingesting an existing (source, source_ref) pair is a no-op: the
// existing id is returned with inserted == false and the store is left
// byte-identical.
func (s *Store) AddContent(ctx context.Context, in ContentInput) (id int64, inserted bool, err error) {
	if strings.TrimSpace(in.Text) == "" {
		return 0, false, ErrEmptyText
	}
	if !in.Source.Valid() {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidSource, in.Source)
	}
	for _, m := range in.Mentions {
		if m.SpanStart < 0 || m.SpanStart >= m.SpanEnd || m.SpanEnd > len(in.Text) {
			return 0, false, fmt.Errorf("%w: [%d,%d) in text of length %d",
				ErrInvalidSpan, m.SpanStart, m.SpanEnd, len(in.Text))
		}
	}
	meta, err := encodeMetadata(in.Metadata)
	if err != nil {
		return 0, false, err
	}
	if in.CapturedAt.IsZero() {
		in.CapturedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if in.SourceRef != nil {
		var existing int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM content_records WHERE source = ? AND source_ref = ?`,
			in.Source, *in.SourceRef).Scan(&existing)
		switch {
		case err == nil:
			return existing, false, nil
		case err != sql.ErrNoRows:
			return 0, false, fmt.Errorf("storage: dedupe lookup: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO content_records (text, source, source_ref, captured_at, metadata)
		 VALUES (?, ?, ?, ?, ?)`,
		in.Text, in.Source, in.SourceRef, formatTime(in.CapturedAt), meta)
	if err != nil {
		return 0, false, fmt.Errorf("storage: insert content: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO content_fts (rowid, text) VALUES (?, ?)`, id, in.Text); err != nil {
		if !isMissingFTS(err) {
			return 0, false, fmt.Errorf("storage: insert content fts: %w", err)
		}
		s.warnFTSMissing(err)
	}

	for _, m := range in.Mentions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entity_mentions (content_id, text, kind, span_start, span_end, source_label)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, m.Text, m.Kind, m.SpanStart, m.SpanEnd, m.SourceLabel); err != nil {
			return 0, false, fmt.Errorf("storage: insert mention: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("storage: commit content: %w", err)
	}
	return id, true, nil
}

// GetContent returns one record by id, or ErrNotFound.
func (s *Store) GetContent(ctx context.Context, id int64) (ContentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, source, source_ref, captured_at, metadata
		 FROM content_records WHERE id = ?`, id)
	rec, err := scanContent(row)
	if err == sql.ErrNoRows {
		return ContentRecord{}, ErrNotFound
	}
	return rec, err
}

// LexicalSearch runs a ranked FTS query over content text. Results are
// ordered by BM25 rank, then newest first, then id ascending. A missing
// FTS index yields an empty slice, never an error.
func (s *Store) LexicalSearch(ctx context.Context, query string, source Source, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}

	q := `SELECT c.id, c.text, c.source, c.source_ref, c.captured_at, c.metadata,
	             snippet(content_fts, 0, '', '', '…', 12)
	      FROM content_fts
	      JOIN content_records c ON c.id = content_fts.rowid
	      WHERE content_fts MATCH ?`
	args := []any{ftsQuery(query)}
	if source != "" {
		q += ` AND c.source = ?`
		args = append(args, source)
	}
	q += ` ORDER BY bm25(content_fts), c.captured_at DESC, c.id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if isMissingFTS(err) {
			s.warnFTSMissing(err)
			return nil, nil
		}
		// A malformed user query (unbalanced quotes etc.) is not a server
		// fault; treat it as no matches.
		if strings.Contains(err.Error(), "fts5: syntax error") {
			s.logger.Debug("fts query rejected", zap.String("query", query), zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("storage: lexical search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var rec ContentRecord
		var ref sql.NullInt64
		var capturedAt, meta, preview string
		if err := rows.Scan(&rec.ID, &rec.Text, &rec.Source, &ref, &capturedAt, &meta, &preview); err != nil {
			return nil, err
		}
		if ref.Valid {
			rec.SourceRef = &ref.Int64
		}
		rec.CapturedAt, _ = time.Parse(time.RFC3339Nano, capturedAt)
		rec.Metadata = decodeMetadata(meta)
		out = append(out, SearchResult{Record: rec, Preview: preview})
	}
	return out, rows.Err()
}

// SearchFileEvents runs a ranked FTS query over file-event text, file
// names, and paths.
func (s *Store) SearchFileEvents(ctx context.Context, query string, limit int) ([]FileEvent, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.captured_at, f.file_path, f.file_name, f.operation,
		        f.content_hash, f.text, f.kind, f.size_bytes, f.metadata
		 FROM file_events_fts
		 JOIN file_events f ON f.id = file_events_fts.rowid
		 WHERE file_events_fts MATCH ?
		 ORDER BY bm25(file_events_fts), f.captured_at DESC, f.id ASC
		 LIMIT ?`, ftsQuery(query), limit)
	if err != nil {
		if isMissingFTS(err) || strings.Contains(err.Error(), "fts5: syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: file event search: %w", err)
	}
	defer rows.Close()
	return scanFileEvents(rows)
}

// Timeline returns records captured within the last `days` days, newest
// first, id ascending on ties.
func (s *Store) Timeline(ctx context.Context, days int, source Source, limit int) ([]ContentRecord, error) {
	if days <= 0 || limit <= 0 {
		return nil, nil
	}
	cutoff := formatTime(time.Now().AddDate(0, 0, -days))

	q := `SELECT id, text, source, source_ref, captured_at, metadata
	      FROM content_records WHERE captured_at >= ?`
	args := []any{cutoff}
	if source != "" {
		q += ` AND source = ?`
		args = append(args, source)
	}
	q += ` ORDER BY captured_at DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: timeline: %w", err)
	}
	defer rows.Close()

	var out []ContentRecord
	for rows.Next() {
		rec, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEntities returns entity mentions, optionally filtered by kind,
// newest parent content first.
func (s *Store) ListEntities(ctx context.Context, kind EntityKind, limit int) ([]EntityMention, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `SELECT e.id, e.content_id, e.text, e.kind, e.span_start, e.span_end, e.source_label
	      FROM entity_mentions e
	      JOIN content_records c ON c.id = e.content_id`
	var args []any
	if kind != "" {
		q += ` WHERE e.kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY c.captured_at DESC, e.id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list entities: %w", err)
	}
	defer rows.Close()

	var out []EntityMention
	for rows.Next() {
		var m EntityMention
		if err := rows.Scan(&m.ID, &m.ContentID, &m.Text, &m.Kind,
			&m.SpanStart, &m.SpanEnd, &m.SourceLabel); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (ContentRecord, error) {
	var rec ContentRecord
	var ref sql.NullInt64
	var capturedAt, meta string
	if err := row.Scan(&rec.ID, &rec.Text, &rec.Source, &ref, &capturedAt, &meta); err != nil {
		return ContentRecord{}, err
	}
	if ref.Valid {
		rec.SourceRef = &ref.Int64
	}
	rec.CapturedAt, _ = time.Parse(time.RFC3339Nano, capturedAt)
	rec.Metadata = decodeMetadata(meta)
	return rec, nil
}

// ftsQuery makes a raw user query safe for FTS5 MATCH. Quoted phrases
// pass through untouched (phrase queries are first-class FTS5 syntax);
// everything else is split into bareword terms with FTS5 operators
// stripped, joined implicitly as AND.
func ftsQuery(query string) string {
	query = strings.TrimSpace(query)
	if strings.Count(query, `"`)%2 == 0 && strings.Contains(query, `"`) {
		return query
	}
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'*^:()-`)
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " ")
}
