package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/retrieval"
	"github.com/unified-ai/core/internal/storage"
)

type scriptedBackend struct {
	responses []string
	err       error
	requests  []Request
}

func (b *scriptedBackend) Generate(_ context.Context, req Request) (string, error) {
	b.requests = append(b.requests, req)
	if b.err != nil {
		return "", b.err
	}
	if len(b.responses) == 0 {
		return "default answer", nil
	}
	resp := b.responses[0]
	if len(b.responses) > 1 {
		b.responses = b.responses[1:]
	}
	return resp, nil
}

func newTestOrchestrator(t *testing.T, backend Backend) (*Orchestrator, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "capture.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := retrieval.New(store, nil, zap.NewNop())
	o := New(engine, backend, Config{
		Tiers: Tiers{"fast": "tiny", "balanced": "medium", "powerful": "big"},
	}, zap.NewNop())
	return o, store
}

func seed(t *testing.T, store *storage.Store, texts ...string) {
	t.Helper()
	for _, text := range texts {
		_, _, err := store.AddContent(context.Background(), storage.ContentInput{
			Text: text, Source: storage.SourceClipboard, CapturedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}
}

func TestQueryGroundsAnswerInContext(t *testing.T) {
	backend := &scriptedBackend{responses: []string{"You saved a Python tutorial."}}
	o, store := newTestOrchestrator(t, backend)
	seed(t, store, "Python programming tutorial", "JavaScript guide")

	answer, err := o.Query(context.Background(), "python tutorial")
	require.NoError(t, err)

	assert.Equal(t, "You saved a Python tutorial.", answer.Answer)
	assert.Equal(t, "medium", answer.ModelUsed, "simple queries use the balanced tier")
	require.NotEmpty(t, answer.Context)
	assert.Equal(t, "Python programming tutorial", answer.Context[0].Text)

	require.Len(t, backend.requests, 1)
	assert.Contains(t, backend.requests[0].Prompt, "Python programming tutorial")
	assert.Contains(t, backend.requests[0].Prompt, "Question: python tutorial")
	assert.Contains(t, backend.requests[0].System, "cite the source type")
}

func TestQueryOfflineKeepsContext(t *testing.T) {
	backend := &scriptedBackend{err: errors.New("connection refused")}
	o, store := newTestOrchestrator(t, backend)
	seed(t, store, "Python programming tutorial")

	answer, err := o.Query(context.Background(), "python")
	require.NoError(t, err, "backend failure is a degradation, not an error")

	assert.Contains(t, answer.Answer, "Local AI Offline")
	assert.Equal(t, "medium", answer.ModelUsed)
	require.NotEmpty(t, answer.Context, "retrieved context survives the outage")
}

func TestQueryNilBackend(t *testing.T) {
	o, store := newTestOrchestrator(t, nil)
	seed(t, store, "some note")

	answer, err := o.Query(context.Background(), "note")
	require.NoError(t, err)
	assert.Contains(t, answer.Answer, "Local AI Offline")
	assert.NotEmpty(t, answer.Context)
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, "No relevant data found in history.", FormatContext(nil))

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	long := strings.Repeat("x", 600)
	out := FormatContext([]storage.ContentRecord{
		{Text: "first note", Source: storage.SourceScreen, CapturedAt: at},
		{Text: long, Source: storage.SourceFile, CapturedAt: at},
	})

	assert.Contains(t, out, "1. [screen - 2026-03-01T12:00:00Z]")
	assert.Contains(t, out, "first note")
	assert.Contains(t, out, "2. [file - ")
	assert.Contains(t, out, strings.Repeat("x", 500)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 501))
}

func TestTiersRoute(t *testing.T) {
	tiers := Tiers{"fast": "a", "balanced": "b", "powerful": "c"}
	assert.Equal(t, "a", tiers.Route("fast"))
	assert.Equal(t, "b", tiers.Route("balanced"))
	assert.Equal(t, "c", tiers.Route("powerful"))
	assert.Equal(t, "b", tiers.Route("galactic"), "unknown tiers fall back to balanced")
}
