package vectorindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig configures the embedded chromem-go backend. This daemon
// has exactly one tenant, the local user, so there are no isolation
// fields here.
type ChromemConfig struct {
	// Path is the directory chromem-go persists gob files to. It must be
	// distinct from the row store's database file so the two can be
	// backed up, moved, or rebuilt independently.
	Path string

	// Compress enables gzip compression of persisted collections.
	Compress bool

	// Collection is the single collection this daemon writes to.
	Collection string

	// VectorSize is the expected embedding dimension. Upsert rejects any
	// vector whose length disagrees.
	VectorSize int
}

func (c *ChromemConfig) applyDefaults() {
	if c.Path == "" {
		c.Path = "~/.unified-ai/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "semantic_embeddings"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// ChromemIndex implements Index on top of chromem-go.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	cfg        ChromemConfig
	logger     *zap.Logger
	mu         sync.Mutex
}

// OpenChromem opens (creating if necessary) a persistent chromem-go
// database at cfg.Path and prepares cfg.Collection. It returns
// ErrUnavailable, never a raw error, so callers can always fall back to
// lexical-only search instead of failing daemon startup.
func OpenChromem(cfg ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	path, err := expandHome(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrUnavailable, path, err)
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem db: %v", ErrUnavailable, err)
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: creating collection: %v", ErrUnavailable, err)
	}

	logger.Info("vectorindex: chromem opened",
		zap.String("path", path),
		zap.String("collection", cfg.Collection),
		zap.Int("vector_size", cfg.VectorSize),
	)

	return &ChromemIndex{db: db, collection: coll, embedder: embedder, cfg: cfg, logger: logger}, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cdocs := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		meta := make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = v
		}
		cdocs = append(cdocs, chromem.Document{
			ID:       d.ID,
			Content:  d.Text,
			Metadata: meta,
		})
	}
	return c.collection.AddDocuments(ctx, cdocs, 1)
}

func (c *ChromemIndex) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		k = 1
	}
	c.mu.Lock()
	count := c.collection.Count()
	c.mu.Unlock()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := c.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{ID: r.ID, Score: r.Similarity, Metadata: r.Metadata})
	}
	return matches, nil
}

func (c *ChromemIndex) Delete(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if err := c.collection.Delete(ctx, nil, nil, id); err != nil {
			c.logger.Warn("vectorindex: delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

func (c *ChromemIndex) Dimension() int { return c.cfg.VectorSize }

func (c *ChromemIndex) Close() error { return nil }
