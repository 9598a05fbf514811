package entities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/storage"
)

func TestCanonicalKind(t *testing.T) {
	tests := []struct {
		label string
		want  storage.EntityKind
	}{
		{"PERSON", storage.EntityPerson},
		{"ORG", storage.EntityOrg},
		{"DATE", storage.EntityDate},
		{"TIME", storage.EntityDate},
		{"MONEY", storage.EntityMoney},
		{"GPE", storage.EntityGeopolitical},
		{"PRODUCT", storage.EntityProduct},
		{"NORP", storage.EntityOther},
		{"", storage.EntityOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalKind(tt.label), "label %q", tt.label)
	}
}

func TestHeuristicExtractSpansAreValid(t *testing.T) {
	e := NewHeuristicExtractor()
	texts := []string{
		"Alice Johnson met Bob Smith at Acme Corp on 2026-03-01.",
		"Transfer $1,200.50 to the London office by March 3, 2026",
		"ping 10.0.0.1 at 14:30 PM, invoice due Friday",
		"",
		"   \n\t  ",
		"no entities here at all, just lowercase prose",
	}
	for _, text := range texts {
		mentions, err := e.Extract(context.Background(), text)
		require.NoError(t, err)
		prev := 0
		for _, m := range mentions {
			assert.GreaterOrEqual(t, m.SpanStart, 0)
			assert.Less(t, m.SpanStart, m.SpanEnd)
			assert.LessOrEqual(t, m.SpanEnd, len(text))
			assert.Equal(t, text[m.SpanStart:m.SpanEnd], m.Text,
				"span offsets must address the mention text verbatim")
			assert.GreaterOrEqual(t, m.SpanStart, prev, "spans must not overlap")
			prev = m.SpanEnd
		}
	}
}

func TestHeuristicExtractKinds(t *testing.T) {
	e := NewHeuristicExtractor()
	ctx := context.Background()

	kindsOf := func(text string) map[storage.EntityKind][]string {
		mentions, err := e.Extract(ctx, text)
		require.NoError(t, err)
		out := make(map[storage.EntityKind][]string)
		for _, m := range mentions {
			out[m.Kind] = append(out[m.Kind], m.Text)
		}
		return out
	}

	got := kindsOf("The meeting with Alice Johnson from Acme Corp is on 2026-05-01 and costs $500")
	assert.Contains(t, got[storage.EntityPerson], "Alice Johnson")
	assert.Contains(t, got[storage.EntityOrg], "Acme Corp")
	assert.Contains(t, got[storage.EntityDate], "2026-05-01")
	assert.Contains(t, got[storage.EntityMoney], "$500")

	got = kindsOf("They relocated the team to San Francisco last quarter")
	assert.Contains(t, got[storage.EntityGeopolitical], "San Francisco")
}

func TestNewFallsBackToNull(t *testing.T) {
	logger := zap.NewNop()

	e := New(Config{Provider: "llm"}, logger) // llm with no generator
	assert.False(t, e.IsAvailable())
	mentions, err := e.Extract(context.Background(), "Alice went to Paris")
	require.NoError(t, err)
	assert.Empty(t, mentions)

	e = New(Config{Provider: "something-else"}, logger)
	assert.False(t, e.IsAvailable())

	e = New(Config{}, logger)
	assert.True(t, e.IsAvailable(), "default provider is the heuristic")
}

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Generate(context.Context, string, string) (string, error) {
	return f.response, f.err
}

func TestLLMExtractorValidatesSpans(t *testing.T) {
	text := "Alice emailed Alice about Acme"
	gen := &fakeGenerator{response: `[
		{"text": "Alice", "label": "PERSON"},
		{"text": "Alice", "label": "PERSON"},
		{"text": "Acme", "label": "ORG"},
		{"text": "Hallucinated Name", "label": "PERSON"}
	]`}

	e := NewLLMExtractor(gen, "test-model", zap.NewNop())
	mentions, err := e.Extract(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, mentions, 3, "hallucinated span must be dropped")

	// Repeated entity text anchors to successive occurrences.
	assert.Equal(t, 0, mentions[0].SpanStart)
	assert.Equal(t, 14, mentions[1].SpanStart)
	for _, m := range mentions {
		assert.Equal(t, text[m.SpanStart:m.SpanEnd], m.Text)
	}
}

func TestLLMExtractorDegradesOnFailure(t *testing.T) {
	e := NewLLMExtractor(&fakeGenerator{err: errors.New("connection refused")}, "m", zap.NewNop())
	mentions, err := e.Extract(context.Background(), "Alice")
	require.NoError(t, err, "backend failure must not propagate")
	assert.Empty(t, mentions)

	e = NewLLMExtractor(&fakeGenerator{response: "I could not find any entities, sorry!"}, "m", zap.NewNop())
	mentions, err = e.Extract(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Empty(t, mentions)

	// Markdown-fenced output still parses.
	e = NewLLMExtractor(&fakeGenerator{
		response: "```json\n[{\"text\": \"Alice\", \"label\": \"PERSON\"}]\n```",
	}, "m", zap.NewNop())
	mentions, err = e.Extract(context.Background(), "Alice waved")
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, storage.EntityPerson, mentions[0].Kind)
}
