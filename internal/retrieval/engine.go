// Package retrieval serves queries over the capture store: lexical
// full-text search, semantic similarity with lexical fallback, timeline
// windows, and entity aggregations. Every operation is a pure read and
// returns deterministically ordered results.
package retrieval

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/storage"
	"github.com/unified-ai/core/internal/vectorindex"
)

// Engine answers queries. Index may be nil (semantic search degrades to
// lexical).
type Engine struct {
	store  *storage.Store
	index  vectorindex.Index
	logger *zap.Logger

	degradedOnce sync.Once
}

// New builds an engine over store and an optional vector index.
func New(store *storage.Store, index vectorindex.Index, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, index: index, logger: logger}
}

// Search is ranked lexical full-text search, newest first on rank ties.
func (e *Engine) Search(ctx context.Context, query string, source storage.Source, limit int) ([]storage.SearchResult, error) {
	return e.store.LexicalSearch(ctx, query, source, limit)
}

// SemanticResult is a semantic hit: the full record plus its cosine
// distance (lower is closer). Fallback results carry distance -1 to make
// the degradation visible to callers that care.
type SemanticResult struct {
	Record   storage.ContentRecord
	Distance float32
	Preview  string
}

// SemanticSearch embeds the query and returns the nearest content
// records. When the vector index is unavailable it transparently falls
// back to lexical search over the same query.
func (e *Engine) SemanticSearch(ctx context.Context, query string, limit int) ([]SemanticResult, error) {
	if e.index == nil {
		return e.lexicalFallback(ctx, query, limit)
	}

	matches, err := e.index.Search(ctx, query, limit)
	if err != nil {
		e.degradedOnce.Do(func() {
			e.logger.Warn("semantic search degraded to lexical", zap.Error(err))
		})
		return e.lexicalFallback(ctx, query, limit)
	}

	results := make([]SemanticResult, 0, len(matches))
	for _, match := range matches {
		id, err := strconv.ParseInt(match.ID, 10, 64)
		if err != nil {
			continue
		}
		rec, err := e.store.GetContent(ctx, id)
		if err != nil {
			// The vector outlived its row (retention sweep mid-query);
			// skip it.
			continue
		}
		results = append(results, SemanticResult{
			Record:   rec,
			Distance: 1 - match.Score,
			Preview:  preview(rec.Text),
		})
	}
	// The index returns matches best-first already; make ties
	// deterministic by id.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Record.ID < results[j].Record.ID
	})
	return results, nil
}

func (e *Engine) lexicalFallback(ctx context.Context, query string, limit int) ([]SemanticResult, error) {
	hits, err := e.store.LexicalSearch(ctx, query, "", limit)
	if err != nil {
		return nil, err
	}
	results := make([]SemanticResult, len(hits))
	for i, hit := range hits {
		results[i] = SemanticResult{Record: hit.Record, Distance: -1, Preview: hit.Preview}
	}
	return results, nil
}

// Timeline returns records captured in the last `days` days.
func (e *Engine) Timeline(ctx context.Context, days int, source storage.Source, limit int) ([]storage.ContentRecord, error) {
	return e.store.Timeline(ctx, days, source, limit)
}

// SearchFiles is ranked lexical search over file events (text, name,
// and path).
func (e *Engine) SearchFiles(ctx context.Context, query string, limit int) ([]storage.FileEvent, error) {
	return e.store.SearchFileEvents(ctx, query, limit)
}

// Entities lists raw mentions, optionally by kind.
func (e *Engine) Entities(ctx context.Context, kind storage.EntityKind, limit int) ([]storage.EntityMention, error) {
	return e.store.ListEntities(ctx, kind, limit)
}

func preview(text string) string {
	const max = 200
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}
