// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/unified-ai/core/internal/vectorindex"
)

// Provider is the interface for embedding providers. The capture
// pipeline treats embeddings as best-effort: a provider that reports
// itself unavailable degrades semantic search to lexical-only, it never
// blocks ingestion.
type Provider interface {
	vectorindex.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// IsAvailable reports whether the provider can actually serve
	// embeddings (the nocgo fastembed stub and NullProvider cannot).
	IsAvailable() bool
	// Close releases resources held by the provider.
	Close() error
}

// NullProvider is the always-constructible fallback used when no real
// provider could be built. Every embed call fails, IsAvailable is
// false, and downstream code degrades without branching on nil.
type NullProvider struct{}

func (NullProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrEmbeddingFailed
}

func (NullProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrEmbeddingFailed
}

func (NullProvider) Dimension() int { return 0 }

func (NullProvider) IsAvailable() bool { return false }

func (NullProvider) Close() error { return nil }

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "fastembed" or "tei"
	Provider string
	// Model is the embedding model name
	Model string
	// BaseURL is the TEI URL (only used for TEI provider)
	BaseURL string
	// CacheDir is the model cache directory (only used for FastEmbed)
	CacheDir string
	// ShowProgress enables progress bars for downloads
	ShowProgress bool
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	// Check FastEmbed model mapping first
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	// Common model dimension patterns
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "small"), strings.Contains(model, "mini"):
		return 384
	default:
		return 384 // Safe default for bge-small
	}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:        cfg.Model,
			CacheDir:     cfg.CacheDir,
			ShowProgress: cfg.ShowProgress,
		})
	case "tei":
		svc, err := NewService(Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		dim := detectDimensionFromModel(cfg.Model)
		return &teiProvider{Service: svc, dimension: dim}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// teiProvider wraps Service to implement Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// IsAvailable is true once the service constructed; individual request
// failures surface per call.
func (t *teiProvider) IsAvailable() bool {
	return true
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}
