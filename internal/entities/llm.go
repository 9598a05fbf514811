package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/storage"
)

// Generator is the slice of the LLM backend the extractor needs. It is
// satisfied by internal/rag's backends; declaring it here keeps this
// package free of a dependency on the orchestrator.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// LLMExtractor asks a small model to tag entities and validates every
// returned span against the source text before accepting it. A model can
// hallucinate offsets; a span whose text does not appear verbatim at the
// claimed position is re-anchored by search, and dropped if the text
// appears nowhere.
type LLMExtractor struct {
	gen     Generator
	model   string
	logger  *zap.Logger
	timeout time.Duration

	unavailableOnce sync.Once
}

// NewLLMExtractor wires a generator-backed extractor.
func NewLLMExtractor(gen Generator, model string, logger *zap.Logger) *LLMExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{gen: gen, model: model, logger: logger, timeout: 30 * time.Second}
}

func (e *LLMExtractor) IsAvailable() bool { return e.gen != nil }

const extractPrompt = `Tag the named entities in the text below. Respond with ONLY a JSON array, no prose. Each element: {"text": "<verbatim span>", "label": "<PERSON|ORG|DATE|TIME|MONEY|GPE|PRODUCT>"}. Use the exact characters from the text for "text". Return [] if there are none.

Text:
%s`

type llmSpan struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Extract calls the model once per text. Any failure (transport, parse,
// or an entirely unanchorable response) degrades to zero mentions; the
// first failure is logged, later ones are debug-level noise.
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]storage.EntityMention, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.gen.Generate(ctx, e.model, fmt.Sprintf(extractPrompt, clip(text, 4000)))
	if err != nil {
		e.unavailableOnce.Do(func() {
			e.logger.Warn("entity model unreachable, records will be stored untagged", zap.Error(err))
		})
		return nil, nil
	}

	spans, err := parseSpans(raw)
	if err != nil {
		e.logger.Debug("entity model returned unparseable output", zap.Error(err))
		return nil, nil
	}

	var mentions []storage.EntityMention
	searchFrom := 0
	for _, span := range spans {
		if span.Text == "" {
			continue
		}
		// Anchor each span left-to-right so repeated entity text maps to
		// successive occurrences rather than all landing on the first.
		idx := strings.Index(text[searchFrom:], span.Text)
		start := 0
		if idx >= 0 {
			start = searchFrom + idx
			searchFrom = start + len(span.Text)
		} else if idx = strings.Index(text, span.Text); idx >= 0 {
			start = idx
		} else {
			continue
		}
		mentions = append(mentions, storage.EntityMention{
			Text:        span.Text,
			Kind:        CanonicalKind(span.Label),
			SpanStart:   start,
			SpanEnd:     start + len(span.Text),
			SourceLabel: span.Label,
		})
	}
	return sortAndDropOverlaps(mentions), nil
}

// parseSpans tolerates models that wrap the JSON array in markdown
// fences or prose.
func parseSpans(raw string) ([]llmSpan, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var spans []llmSpan
	if err := json.Unmarshal([]byte(raw[start:end+1]), &spans); err != nil {
		return nil, fmt.Errorf("decode spans: %w", err)
	}
	return spans, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
