package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetentionPolicy bounds the store's growth. Zero values disable the
// corresponding limit.
type RetentionPolicy struct {
	MaxRecords int // max content_records rows to keep
	MaxAgeDays int // drop content older than this many days
	Interval   time.Duration
}

// Enabled reports whether any limit is set.
func (p RetentionPolicy) Enabled() bool {
	return p.MaxRecords > 0 || p.MaxAgeDays > 0
}

// Sweep drops the oldest content rows until the policy is satisfied and
// returns the ids of the dropped rows so the caller can purge the vector
// index entries keyed by them. Entity mentions cascade with their parent
// content row; FTS shadow rows are deleted explicitly since external
// content tables do not participate in foreign keys.
//
// Source tables are swept by age only: source rows are the provenance
// trail and are cheaper per row than content, so MaxRecords applies to
// the semantic layer alone.
func (s *Store) Sweep(ctx context.Context, policy RetentionPolicy) ([]int64, error) {
	if !policy.Enabled() {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: begin sweep: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var doomed []int64
	collect := func(query string, args ...any) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			doomed = append(doomed, id)
		}
		return rows.Err()
	}

	if policy.MaxAgeDays > 0 {
		cutoff := formatTime(time.Now().AddDate(0, 0, -policy.MaxAgeDays))
		if err := collect(
			`SELECT id FROM content_records WHERE captured_at < ?`, cutoff); err != nil {
			return nil, fmt.Errorf("storage: sweep by age: %w", err)
		}
	}
	if policy.MaxRecords > 0 {
		if err := collect(
			`SELECT id FROM content_records ORDER BY captured_at DESC, id DESC LIMIT -1 OFFSET ?`,
			policy.MaxRecords); err != nil {
			return nil, fmt.Errorf("storage: sweep by count: %w", err)
		}
	}
	if len(doomed) == 0 {
		return nil, nil
	}
	doomed = dedupeIDs(doomed)

	for _, id := range doomed {
		var text string
		if err := tx.QueryRowContext(ctx,
			`SELECT text FROM content_records WHERE id = ?`, id).Scan(&text); err != nil {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO content_fts (content_fts, rowid, text) VALUES ('delete', ?, ?)`,
			id, text); err != nil && !isMissingFTS(err) {
			return nil, fmt.Errorf("storage: sweep fts delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM content_records WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("storage: sweep delete: %w", err)
		}
	}

	if policy.MaxAgeDays > 0 {
		cutoff := formatTime(time.Now().AddDate(0, 0, -policy.MaxAgeDays))
		for _, table := range []string{"screen_captures", "clipboard_entries"} {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE captured_at < ?`, cutoff); err != nil {
				return nil, fmt.Errorf("storage: sweep %s: %w", table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("storage: commit sweep: %w", err)
	}
	s.logger.Info("retention sweep dropped content rows", zap.Int("count", len(doomed)))
	return doomed, nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
