// Package vectorindex defines the interface for the semantic (ANN) index
// used by the retrieval engine. The daemon serves one local user, so the
// interface carries no tenant or collection-isolation modes.
package vectorindex

import (
	"context"
	"errors"
)

// Sentinel errors for vector index operations.
var (
	// ErrUnavailable is returned by Index methods, and by Open, when the
	// backing store could not be initialized or the embedder is not
	// configured. Callers treat this as "semantic search degraded to
	// lexical-only", never as a fatal error.
	ErrUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch is returned when a vector's length does not
	// match the collection's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound is returned when a lookup by ID finds nothing.
	ErrNotFound = errors.New("vector not found")
)

// Embedder generates vector embeddings from text. It is implemented by
// internal/embeddings.Provider; the interface is declared here (rather
// than imported from there) to avoid a dependency cycle between the
// embedding providers and the index that consumes them.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Document is a unit of content to be embedded and indexed.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Match is a single similarity search result.
type Match struct {
	ID       string
	Score    float32 // cosine similarity, higher is better
	Metadata map[string]string
}

// Index is the interface the retrieval engine programs against. Both
// backends (embedded chromem-go and remote Qdrant) implement it
// identically so storage.Store never branches on which is active.
type Index interface {
	// Upsert embeds and stores documents, replacing any existing entry
	// with the same ID.
	Upsert(ctx context.Context, docs []Document) error

	// Search returns up to k nearest neighbors of query's embedding.
	Search(ctx context.Context, query string, k int) ([]Match, error)

	// Delete removes documents by ID. Missing IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// Dimension reports the configured embedding dimension.
	Dimension() int

	// Close releases resources held by the index.
	Close() error
}
