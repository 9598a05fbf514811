package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unified-ai/core/internal/vectorindex"
)

// Compile-time interface checks: every provider must satisfy both the
// package's Provider interface and vectorindex.Embedder.
var (
	_ vectorindex.Embedder = (*Service)(nil)
	_ Provider             = (*FastEmbedProvider)(nil)
	_ Provider             = (*teiProvider)(nil)
	_ Provider             = NullProvider{}
)

func TestNullProviderDegrades(t *testing.T) {
	p := NullProvider{}

	assert.False(t, p.IsAvailable())
	assert.Zero(t, p.Dimension())
	assert.NoError(t, p.Close())

	_, err := p.EmbedQuery(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	_, err = p.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
