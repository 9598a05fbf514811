package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

// Rate limits shared by both backends. The local Ollama server benefits
// as much as the metered API: the capture pipeline can otherwise pile
// entity-extraction calls onto a model that is already composing an
// answer.
const (
	defaultRateLimit = 50.0 / 60.0 // ~0.83 requests per second
	defaultBurst     = 5           // allow bursts of up to 5 requests
)

// ErrBackendUnavailable wraps any transport-level generation failure so
// the orchestrator can distinguish "model offline" from a bad request.
var ErrBackendUnavailable = errors.New("llm backend unavailable")

// Request is one generation call.
type Request struct {
	Model  string
	System string
	Prompt string
}

// Backend generates text. Implementations own their transport and
// timeouts beyond the context deadline the orchestrator sets.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// OllamaBackend talks to a local Ollama server.
type OllamaBackend struct {
	serverURL string
	limiter   *rate.Limiter
}

// NewOllamaBackend points at serverURL (default http://localhost:11434).
func NewOllamaBackend(serverURL string) *OllamaBackend {
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}
	return &OllamaBackend{
		serverURL: serverURL,
		limiter:   rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
}

func (b *OllamaBackend) Generate(ctx context.Context, req Request) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	llm, err := ollama.New(
		ollama.WithServerURL(b.serverURL),
		ollama.WithModel(req.Model),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt))

	resp, err := llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrBackendUnavailable)
	}
	return resp.Choices[0].Content, nil
}

// AnthropicBackend talks to the Anthropic API.
type AnthropicBackend struct {
	client    anthropic.Client
	limiter   *rate.Limiter
	maxTokens int64
}

// NewAnthropicBackend builds a client with the given API key.
func NewAnthropicBackend(apiKey string) *AnthropicBackend {
	return &AnthropicBackend{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		limiter:   rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxTokens: 2048,
	}
}

func (b *AnthropicBackend) Generate(ctx context.Context, req Request) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: b.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content", ErrBackendUnavailable)
}

// Tiers maps complexity to a configured model name, falling back to
// balanced for unknown tiers.
type Tiers map[string]string

// Route resolves a tier to its model.
func (t Tiers) Route(tier string) string {
	if model, ok := t[tier]; ok && model != "" {
		return model
	}
	return t["balanced"]
}

// GeneratorFunc adapts a Backend to simpler call sites (the entity
// extractor's Generator interface has this shape).
type GeneratorFunc struct {
	Backend Backend
	Timeout time.Duration
}

// Generate runs a system-prompt-less call against model.
func (g GeneratorFunc) Generate(ctx context.Context, model, prompt string) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	return g.Backend.Generate(ctx, Request{Model: model, Prompt: prompt})
}
