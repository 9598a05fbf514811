// Package ingest drains observations from the capture daemons, applies
// the privacy filter, writes source tables and the content mirror, and
// schedules best-effort embedding writes. One pipeline serves all three
// daemons; per-source ordering is preserved because each daemon is the
// only producer for its source.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/capture"
	"github.com/unified-ai/core/internal/entities"
	"github.com/unified-ai/core/internal/eventbus"
	"github.com/unified-ai/core/internal/privacy"
	"github.com/unified-ai/core/internal/storage"
)

// Config configures a Pipeline.
type Config struct {
	// ChannelCapacity bounds the observation queue. Producers other than
	// the screen daemon block when it fills.
	ChannelCapacity int

	// EnablePII runs redaction over observation text before anything is
	// persisted.
	EnablePII bool

	// ExcludedApps and ExcludedTitleWords drive window/app suppression
	// for observations that carry window identity.
	ExcludedApps       []string
	ExcludedTitleWords []string
}

// Pipeline is the single consumer of the observation channel.
type Pipeline struct {
	cfg       Config
	store     *storage.Store
	filter    *privacy.Filter
	extractor entities.Extractor
	embedder  *EmbedWorker
	bus       eventbus.Bus
	logger    *zap.Logger
	metrics   *Metrics

	ch chan capture.Observation
}

// New wires a pipeline. embedder and bus may be nil (no embeddings, no
// events); extractor must not be (use entities.NullExtractor).
func New(
	cfg Config,
	store *storage.Store,
	filter *privacy.Filter,
	extractor entities.Extractor,
	embedder *EmbedWorker,
	bus eventbus.Bus,
	logger *zap.Logger,
) *Pipeline {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 1024
	}
	if bus == nil {
		bus = eventbus.NullBus{}
	}
	if extractor == nil {
		extractor = entities.NullExtractor{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:       cfg,
		store:     store,
		filter:    filter,
		extractor: extractor,
		embedder:  embedder,
		bus:       bus,
		logger:    logger,
		ch:        make(chan capture.Observation, cfg.ChannelCapacity),
	}
	p.metrics = NewMetrics(logger, func() int64 { return int64(len(p.ch)) })
	return p
}

// Channel is where the capture daemons send. The screen daemon must use
// a non-blocking send (it drops frames on a full queue); the others
// block, which is the backpressure by which a slow store slows capture.
func (p *Pipeline) Channel() chan<- capture.Observation {
	return p.ch
}

// Run drains the channel until ctx is cancelled, then finishes whatever
// observation is in flight before returning. Draining never abandons a
// write mid-transaction.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("ingest pipeline started", zap.Int("capacity", p.cfg.ChannelCapacity))
	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued; producers have stopped by
			// now (they share this ctx).
			for {
				select {
				case obs := <-p.ch:
					p.Ingest(context.Background(), obs)
				default:
					p.logger.Info("ingest pipeline drained")
					return ctx.Err()
				}
			}
		case obs := <-p.ch:
			p.Ingest(ctx, obs)
		}
	}
}

// Ingest processes one observation synchronously. Exported for the
// resync path and tests; the daemons go through Channel.
func (p *Pipeline) Ingest(ctx context.Context, obs capture.Observation) {
	start := time.Now()

	if window, app, ok := windowIdentity(obs); ok {
		if !privacy.ShouldCapture(app, window, p.cfg.ExcludedApps, p.cfg.ExcludedTitleWords) {
			p.metrics.recordDropped(ctx, obs.Source, "suppressed")
			return
		}
	}

	var err error
	switch obs.Source {
	case storage.SourceScreen:
		err = p.ingestScreen(ctx, obs)
	case storage.SourceClipboard:
		err = p.ingestClipboard(ctx, obs)
	case storage.SourceFile:
		err = p.ingestFile(ctx, obs)
	default:
		err = fmt.Errorf("%w: %q", storage.ErrInvalidSource, obs.Source)
	}

	switch {
	case err == nil:
		p.metrics.recordIngested(ctx, obs.Source, time.Since(start).Seconds())
	case isNormalDrop(err):
		p.metrics.recordDropped(ctx, obs.Source, dropReason(err))
	default:
		p.metrics.recordDropped(ctx, obs.Source, "error")
		p.logger.Warn("ingest failed, observation dropped",
			zap.String("source", string(obs.Source)), zap.Error(err))
	}
}

func (p *Pipeline) ingestScreen(ctx context.Context, obs capture.Observation) error {
	payload := obs.Screen
	if payload == nil {
		return fmt.Errorf("screen observation without payload")
	}
	text := p.redact(ctx, payload.Text)

	id, err := p.store.InsertScreenCapture(ctx, storage.ScreenCapture{
		CapturedAt:     obs.CapturedAt,
		PerceptualHash: payload.PerceptualHash,
		ExtractedText:  text,
		ActiveWindow:   payload.Window,
		ActiveApp:      payload.App,
		Metadata: storage.Metadata{
			"width":         payload.Width,
			"height":        payload.Height,
			"monitor_index": payload.MonitorIndex,
		},
	})
	if err != nil {
		return err
	}

	// Empty OCR still produces the source row above (the capture
	// happened) but never a content record.
	return p.mirror(ctx, text, obs, id, storage.Metadata{
		"window": payload.Window,
		"app":    payload.App,
	})
}

func (p *Pipeline) ingestClipboard(ctx context.Context, obs capture.Observation) error {
	payload := obs.Clipboard
	if payload == nil {
		return fmt.Errorf("clipboard observation without payload")
	}
	text := p.redact(ctx, payload.Text)

	id, err := p.store.InsertClipboardEntry(ctx, storage.ClipboardEntry{
		CapturedAt:     obs.CapturedAt,
		ContentHash:    payload.ContentHash,
		Text:           text,
		ClassifiedType: payload.ClassifiedType,
		SourceApp:      payload.SourceApp,
		Metadata: storage.Metadata{
			"length":     payload.Length,
			"line_count": payload.LineCount,
		},
	})
	if err != nil {
		return err
	}
	return p.mirror(ctx, text, obs, id, storage.Metadata{
		"type":       string(payload.ClassifiedType),
		"source_app": payload.SourceApp,
	})
}

func (p *Pipeline) ingestFile(ctx context.Context, obs capture.Observation) error {
	payload := obs.File
	if payload == nil {
		return fmt.Errorf("file observation without payload")
	}

	event := storage.FileEvent{
		CapturedAt:  obs.CapturedAt,
		FilePath:    payload.Path,
		FileName:    payload.Name,
		Operation:   payload.Operation,
		ContentHash: payload.ContentHash,
		Kind:        payload.Kind,
		SizeBytes:   payload.SizeBytes,
	}
	var text string
	if payload.Text != nil {
		text = p.redact(ctx, *payload.Text)
		event.Text = &text
	}

	id, version, err := p.store.InsertFileEvent(ctx, event)
	if err != nil {
		return err
	}

	meta := storage.Metadata{
		"path":      payload.Path,
		"operation": string(payload.Operation),
		"kind":      string(payload.Kind),
	}
	if version > 0 {
		meta["version"] = version
	}
	// Deletions carry no text and produce no content record; the file
	// event row alone records that the path went away.
	return p.mirror(ctx, text, obs, id, meta)
}

// mirror writes the ContentRecord (entities included, one transaction),
// schedules the embedding, and publishes the post-commit event. Empty
// text is a silent skip, not an error.
func (p *Pipeline) mirror(ctx context.Context, text string, obs capture.Observation, sourceRef int64, meta storage.Metadata) error {
	if text == "" {
		return nil
	}

	mentions, err := p.extractor.Extract(ctx, text)
	if err != nil {
		// Contractually extractors return empty instead of failing, so
		// any error here is a bug worth logging, but never worth losing
		// the content over.
		p.logger.Warn("entity extraction failed", zap.Error(err))
		mentions = nil
	}

	id, inserted, err := p.store.AddContent(ctx, storage.ContentInput{
		Text:       text,
		Source:     obs.Source,
		SourceRef:  &sourceRef,
		CapturedAt: obs.CapturedAt,
		Metadata:   meta,
		Mentions:   mentions,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	if p.embedder != nil {
		p.embedder.Enqueue(EmbedJob{
			ContentID:  id,
			Text:       text,
			Source:     obs.Source,
			CapturedAt: obs.CapturedAt,
		})
	}
	p.bus.PublishCaptured(eventbus.ContentCaptured{
		ContentID:  id,
		Source:     obs.Source,
		SourceRef:  &sourceRef,
		CapturedAt: obs.CapturedAt,
	})
	return nil
}

// redact applies PII redaction when enabled. The unredacted text is
// dropped on the floor here; nothing downstream ever sees it.
func (p *Pipeline) redact(ctx context.Context, text string) string {
	if !p.cfg.EnablePII || p.filter == nil || text == "" {
		return text
	}
	redacted, findings := p.filter.Redact(text)
	if len(findings) > 0 {
		kinds := make([]string, len(findings))
		for i, f := range findings {
			kinds[i] = f.Kind
		}
		p.metrics.recordRedactions(ctx, kinds)
	}
	return redacted
}

func windowIdentity(obs capture.Observation) (window, app string, ok bool) {
	switch {
	case obs.Screen != nil:
		return obs.Screen.Window, obs.Screen.App, true
	case obs.Clipboard != nil && obs.Clipboard.SourceApp != "":
		return "", obs.Clipboard.SourceApp, true
	}
	return "", "", false
}

func isNormalDrop(err error) bool {
	return errors.Is(err, storage.ErrDuplicateHash) || errors.Is(err, storage.ErrEmptyText)
}

func dropReason(err error) string {
	if errors.Is(err, storage.ErrDuplicateHash) {
		return "duplicate"
	}
	return "empty"
}
