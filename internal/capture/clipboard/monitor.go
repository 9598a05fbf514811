// Package clipboard implements the clipboard polling daemon: read,
// dedupe by content hash, classify, and emit into the ingestion channel.
package clipboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/capture"
	"github.com/unified-ai/core/internal/capture/screen"
	"github.com/unified-ai/core/internal/storage"
)

// truncationMarker is appended when clipboard content exceeds the
// configured size limit.
const truncationMarker = "... [truncated]"

// Reader abstracts the OS clipboard so tests can script transitions.
type Reader interface {
	ReadAll() (string, error)
}

// osReader reads the real clipboard.
type osReader struct{}

func (osReader) ReadAll() (string, error) { return clipboard.ReadAll() }

// AppResolver names the frontmost application, best-effort.
type AppResolver func(ctx context.Context) string

// Config configures a Monitor.
type Config struct {
	PollInterval time.Duration
	MaxBytes     int

	// Reader defaults to the OS clipboard; tests override it.
	Reader Reader

	// ResolveApp defaults to the shared foreground-window lookup.
	ResolveApp AppResolver
}

// Monitor is the clipboard polling daemon.
type Monitor struct {
	cfg    Config
	out    chan<- capture.Observation
	logger *zap.Logger

	lastHash string

	readErrOnce sync.Once
}

// New builds a clipboard monitor emitting into out.
func New(cfg Config, out chan<- capture.Observation, logger *zap.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 20
	}
	if cfg.Reader == nil {
		cfg.Reader = osReader{}
	}
	if cfg.ResolveApp == nil {
		cfg.ResolveApp = func(ctx context.Context) string {
			_, app := screen.ActiveWindow(ctx)
			return app
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{cfg: cfg, out: out, logger: logger}
}

// Run polls until the context is cancelled. Sends block when the ingest
// channel is full: clipboard transitions are rare and precious, so the
// loop slows down rather than dropping one.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("clipboard monitor started",
		zap.Duration("poll_interval", m.cfg.PollInterval))

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("clipboard monitor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
		if obs, ok := m.poll(ctx); ok {
			select {
			case m.out <- obs:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// poll reads the clipboard once and builds an observation when the
// content is new.
func (m *Monitor) poll(ctx context.Context) (capture.Observation, bool) {
	text, err := m.cfg.Reader.ReadAll()
	if err != nil {
		// Headless hosts have no clipboard at all; complain once, then
		// stay quiet.
		m.readErrOnce.Do(func() {
			m.logger.Warn("clipboard read failed, monitor degraded", zap.Error(err))
		})
		return capture.Observation{}, false
	}
	if strings.TrimSpace(text) == "" {
		return capture.Observation{}, false
	}

	hash := hashText(text)
	if hash == m.lastHash {
		return capture.Observation{}, false
	}
	m.lastHash = hash

	if len(text) > m.cfg.MaxBytes {
		text = text[:m.cfg.MaxBytes] + truncationMarker
		// The stored hash still identifies the original content so an
		// identical oversized copy dedupes on the next poll.
	}

	obs := capture.Observation{
		Source:     storage.SourceClipboard,
		CapturedAt: time.Now(),
		Clipboard: &capture.ClipboardPayload{
			Text:           text,
			ContentHash:    hash,
			ClassifiedType: Classify(text),
			SourceApp:      m.cfg.ResolveApp(ctx),
			Length:         len(text),
			LineCount:      strings.Count(text, "\n") + 1,
		},
	}
	return obs, true
}

// hashText is the canonical clipboard content hash: SHA-256 over the
// UTF-8 bytes, lowercase hex.
func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
