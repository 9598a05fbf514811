package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/storage"
)

// resyncBatch bounds each source's backfill per Resync call.
const resyncBatch = 1000

// Resync re-scans the source tables and mirrors any row the semantic
// layer is missing a ContentRecord for. Crashes between a source-table
// commit and its content mirror leave exactly this gap; running Resync
// at startup closes it. Returns the number of records backfilled.
func (p *Pipeline) Resync(ctx context.Context) (int, error) {
	total := 0
	for _, source := range []storage.Source{
		storage.SourceScreen, storage.SourceClipboard, storage.SourceFile,
	} {
		n, err := p.resyncSource(ctx, source)
		if err != nil {
			return total, fmt.Errorf("resync %s: %w", source, err)
		}
		total += n
	}
	if total > 0 {
		p.logger.Info("resync backfilled content records", zap.Int("count", total))
	}
	return total, nil
}

func (p *Pipeline) resyncSource(ctx context.Context, source storage.Source) (int, error) {
	ids, err := p.store.MissingContentRefs(ctx, source, resyncBatch)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		text, capturedAt, meta, err := p.loadSourceRow(ctx, source, id)
		if err != nil {
			p.logger.Warn("resync cannot read source row",
				zap.String("source", string(source)), zap.Int64("id", id), zap.Error(err))
			continue
		}
		if text == "" {
			continue
		}

		mentions, _ := p.extractor.Extract(ctx, text)
		contentID, inserted, err := p.store.AddContent(ctx, storage.ContentInput{
			Text:       text,
			Source:     source,
			SourceRef:  &id,
			CapturedAt: capturedAt,
			Metadata:   meta,
			Mentions:   mentions,
		})
		if err != nil {
			p.logger.Warn("resync insert failed", zap.Int64("id", id), zap.Error(err))
			continue
		}
		if !inserted {
			continue
		}
		count++
		if p.embedder != nil {
			p.embedder.Enqueue(EmbedJob{
				ContentID:  contentID,
				Text:       text,
				Source:     source,
				CapturedAt: capturedAt,
			})
		}
	}
	return count, nil
}

// loadSourceRow reads the text and capture time of one source-table row.
// Source text was already redacted on its way in, so resync stores it
// as-is.
func (p *Pipeline) loadSourceRow(ctx context.Context, source storage.Source, id int64) (string, time.Time, storage.Metadata, error) {
	switch source {
	case storage.SourceScreen:
		row, err := p.store.GetScreenCapture(ctx, id)
		if err != nil {
			return "", time.Time{}, nil, err
		}
		return row.ExtractedText, row.CapturedAt, storage.Metadata{
			"window": row.ActiveWindow, "app": row.ActiveApp,
		}, nil
	case storage.SourceClipboard:
		row, err := p.store.GetClipboardEntry(ctx, id)
		if err != nil {
			return "", time.Time{}, nil, err
		}
		return row.Text, row.CapturedAt, storage.Metadata{
			"type": string(row.ClassifiedType), "source_app": row.SourceApp,
		}, nil
	default:
		row, err := p.store.GetFileEvent(ctx, id)
		if err != nil {
			return "", time.Time{}, nil, err
		}
		text := ""
		if row.Text != nil {
			text = *row.Text
		}
		return text, row.CapturedAt, storage.Metadata{
			"path": row.FilePath, "operation": string(row.Operation), "kind": string(row.Kind),
		}, nil
	}
}
