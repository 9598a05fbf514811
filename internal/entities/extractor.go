// Package entities tags named entities in captured text. Extraction is
// best-effort by design: when no model is available the pipeline gets an
// empty span list, never an error, and records are stored untagged.
package entities

import (
	"context"

	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/storage"
)

// Extractor produces entity mentions for a piece of text. Implementations
// must return spans in text order, non-overlapping, with offsets valid
// for the input.
type Extractor interface {
	// IsAvailable reports whether extraction is backed by a working model.
	IsAvailable() bool

	// Extract tags entities in text. The ContentID field of returned
	// mentions is left zero; the storage layer fills it in.
	Extract(ctx context.Context, text string) ([]storage.EntityMention, error)
}

// NullExtractor is the always-available fallback: it tags nothing.
type NullExtractor struct{}

func (NullExtractor) IsAvailable() bool { return false }

func (NullExtractor) Extract(context.Context, string) ([]storage.EntityMention, error) {
	return nil, nil
}

// Config selects the extraction backend.
type Config struct {
	// Provider is "heuristic" (default), "llm", or "none".
	Provider string

	// Generator backs the llm provider; ignored otherwise.
	Generator Generator

	// Model is the model name passed to the generator.
	Model string
}

// New builds the configured extractor, falling back to NullExtractor on
// any construction problem. The fallback is logged once here; callers
// never need to branch on availability.
func New(cfg Config, logger *zap.Logger) Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "", "heuristic":
		return NewHeuristicExtractor()
	case "llm":
		if cfg.Generator == nil {
			logger.Warn("llm entity extractor configured without a backend, entity tagging disabled")
			return NullExtractor{}
		}
		return NewLLMExtractor(cfg.Generator, cfg.Model, logger)
	case "none":
		return NullExtractor{}
	default:
		logger.Warn("unknown entity extractor provider, entity tagging disabled",
			zap.String("provider", cfg.Provider))
		return NullExtractor{}
	}
}

// sortAndDropOverlaps enforces the Extract contract on a candidate span
// list: spans sorted by start offset, overlaps resolved in favor of the
// earlier (then longer) span.
func sortAndDropOverlaps(mentions []storage.EntityMention) []storage.EntityMention {
	if len(mentions) <= 1 {
		return mentions
	}
	for i := 1; i < len(mentions); i++ {
		for j := i; j > 0; j-- {
			a, b := mentions[j-1], mentions[j]
			if a.SpanStart < b.SpanStart ||
				(a.SpanStart == b.SpanStart && a.SpanEnd >= b.SpanEnd) {
				break
			}
			mentions[j-1], mentions[j] = b, a
		}
	}
	out := mentions[:1]
	for _, m := range mentions[1:] {
		if m.SpanStart < out[len(out)-1].SpanEnd {
			continue
		}
		out = append(out, m)
	}
	return out
}
