// Package rag answers natural-language questions over the capture
// store: retrieve context, compose a grounded prompt, call the
// configured language-model backend, and always hand back the retrieved
// context even when the model is offline.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/retrieval"
	"github.com/unified-ai/core/internal/storage"
)

// contextSnippetLen bounds each context entry in the prompt.
const contextSnippetLen = 500

// defaultContextLimit is how many records back an answer.
const defaultContextLimit = 5

const systemPrompt = "You are a helpful AI assistant with access to the user's recorded digital history " +
	"(screen captures, clipboard, files).\n" +
	"Use the provided CONTEXT to answer the user's question.\n" +
	"If the answer is found in the context, cite the source type (e.g., 'According to your screen history...').\n" +
	"If the answer is NOT in the context, state that you couldn't find it in their history, " +
	"then provide a general knowledge answer if possible, clearly distinguishing it from their data."

// offlineAnswer is returned when the backend is unreachable. The caller
// still receives the retrieved context; found content is never held
// hostage to a down model.
const offlineAnswer = "⚠️ **Local AI Offline**\n\n" +
	"I found relevant content in your history (see below), but I couldn't generate a summary " +
	"because the local LLM is not reachable.\n\n" +
	"Please ensure your configured backend is running (e.g. `ollama serve`)."

const noContextText = "No relevant data found in history."

// Answer is the orchestrator's result.
type Answer struct {
	Answer    string                  `json:"answer"`
	Context   []storage.ContentRecord `json:"context"`
	ModelUsed string                  `json:"model_used"`
}

// Config configures the orchestrator.
type Config struct {
	Tiers   Tiers
	Timeout time.Duration // per LLM call, default 120s
}

// Orchestrator wires retrieval to a language-model backend.
type Orchestrator struct {
	engine  *retrieval.Engine
	backend Backend
	cfg     Config
	logger  *zap.Logger
}

// New builds an orchestrator. backend may be nil: every query then
// returns the offline answer with context.
func New(engine *retrieval.Engine, backend Backend, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = Tiers{"balanced": "llama3.2:3b"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{engine: engine, backend: backend, cfg: cfg, logger: logger}
}

// Query answers one question. Retrieval prefers semantic search and
// falls back to lexical; generation uses the balanced tier.
func (o *Orchestrator) Query(ctx context.Context, question string) (Answer, error) {
	records, err := o.retrieve(ctx, question, defaultContextLimit)
	if err != nil {
		return Answer{}, err
	}

	model := o.cfg.Tiers.Route("balanced")
	answer := Answer{Context: records, ModelUsed: model}

	if o.backend == nil {
		answer.Answer = offlineAnswer
		return answer, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	text, err := o.backend.Generate(callCtx, Request{
		Model:  model,
		System: systemPrompt,
		Prompt: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", FormatContext(records), question),
	})
	if err != nil {
		o.logger.Warn("generation failed, returning offline answer", zap.Error(err))
		answer.Answer = offlineAnswer
		return answer, nil
	}
	answer.Answer = text
	return answer, nil
}

// retrieve gets context records: semantic first, lexical when that
// yields nothing.
func (o *Orchestrator) retrieve(ctx context.Context, question string, limit int) ([]storage.ContentRecord, error) {
	semantic, err := o.engine.SemanticSearch(ctx, question, limit)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}
	if len(semantic) > 0 {
		records := make([]storage.ContentRecord, len(semantic))
		for i, hit := range semantic {
			records[i] = hit.Record
		}
		return records, nil
	}

	lexical, err := o.engine.Search(ctx, question, "", limit)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}
	records := make([]storage.ContentRecord, len(lexical))
	for i, hit := range lexical {
		records[i] = hit.Record
	}
	return records, nil
}

// FormatContext renders records as the numbered list the prompt embeds:
// "[source - timestamp] text", each entry truncated.
func FormatContext(records []storage.ContentRecord) string {
	if len(records) == 0 {
		return noContextText
	}
	entries := make([]string, len(records))
	for i, rec := range records {
		content := strings.TrimSpace(rec.Text)
		if len(content) > contextSnippetLen {
			content = content[:contextSnippetLen] + "..."
		}
		entries[i] = fmt.Sprintf("%d. [%s - %s]\n   %s",
			i+1, rec.Source, rec.CapturedAt.UTC().Format(time.RFC3339), content)
	}
	return strings.Join(entries, "\n\n")
}
