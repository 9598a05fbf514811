package vectorindex

import (
	"context"

	"go.uber.org/zap"
)

// Config selects and configures a backend. Provider is "chromem"
// (default, embedded, zero external services) or "qdrant" (remote gRPC
// service).
type Config struct {
	Provider string
	Chromem  ChromemConfig
	Qdrant   QdrantConfig
}

// Open builds the configured Index. It never returns an error: when the
// configured backend cannot be opened, Open logs the failure and returns
// a nullIndex that reports itself unavailable, so storage.Store can
// always construct cleanly and degrade semantic search to lexical-only;
// the vector index is optional infrastructure.
func Open(ctx context.Context, cfg Config, embedder Embedder, logger *zap.Logger) Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	if embedder == nil {
		logger.Warn("vectorindex: no embedder configured, semantic search disabled")
		return nullIndex{}
	}

	switch cfg.Provider {
	case "qdrant":
		idx, err := OpenQdrant(ctx, cfg.Qdrant, embedder, logger)
		if err != nil {
			logger.Warn("vectorindex: qdrant unavailable, falling back to lexical-only", zap.Error(err))
			return nullIndex{}
		}
		return idx
	case "chromem", "":
		idx, err := OpenChromem(cfg.Chromem, embedder, logger)
		if err != nil {
			logger.Warn("vectorindex: chromem unavailable, falling back to lexical-only", zap.Error(err))
			return nullIndex{}
		}
		return idx
	default:
		logger.Warn("vectorindex: unknown provider, disabling semantic search", zap.String("provider", cfg.Provider))
		return nullIndex{}
	}
}

// nullIndex is the always-unavailable Index used when no backend could
// be opened. Every method returns ErrUnavailable except Close, which is
// a no-op, so Close stays safe to defer unconditionally.
type nullIndex struct{}

func (nullIndex) Upsert(context.Context, []Document) error { return ErrUnavailable }
func (nullIndex) Search(context.Context, string, int) ([]Match, error) {
	return nil, ErrUnavailable
}
func (nullIndex) Delete(context.Context, []string) error { return nil }
func (nullIndex) Dimension() int                         { return 0 }
func (nullIndex) Close() error                            { return nil }

var _ Index = nullIndex{}

// IsAvailable reports whether idx is a usable backend rather than the
// null fallback. Exported so the retrieval engine can decide to skip
// embedding the query entirely instead of paying for it and hitting
// ErrUnavailable.
func IsAvailable(idx Index) bool {
	_, isNull := idx.(nullIndex)
	return !isNull
}
