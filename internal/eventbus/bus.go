// Package eventbus publishes post-commit capture events for in-process
// and local subscribers (the desktop shell and dashboard attach here).
// The bus is an embedded NATS server: consumers that live in the same
// process subscribe through the same API as external ones, and losing
// the bus entirely only costs notifications, never captures.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/storage"
)

// Subjects, one per capture source plus a wildcard for "everything".
const (
	SubjectScreen    = "content.captured.screen"
	SubjectClipboard = "content.captured.clipboard"
	SubjectFile      = "content.captured.file"
	SubjectAll       = "content.captured.*"
)

// ContentCaptured is the post-commit event payload. It carries ids, not
// content: subscribers read the store if they want the text. EventID
// uniquely identifies the delivery so subscribers that persist or relay
// events can dedupe across reconnects.
type ContentCaptured struct {
	EventID    string         `json:"event_id"`
	ContentID  int64          `json:"content_id"`
	Source     storage.Source `json:"source"`
	SourceRef  *int64         `json:"source_ref,omitempty"`
	CapturedAt time.Time      `json:"captured_at"`
}

// Bus publishes capture events. Publishing is fire-and-forget;
// implementations must never block the ingest pipeline.
type Bus interface {
	PublishCaptured(event ContentCaptured)
	Close()
}

// SubjectFor maps a source to its subject.
func SubjectFor(source storage.Source) string {
	switch source {
	case storage.SourceScreen:
		return SubjectScreen
	case storage.SourceClipboard:
		return SubjectClipboard
	default:
		return SubjectFile
	}
}

// NullBus drops everything; used when the bus is disabled or failed to
// start.
type NullBus struct{}

func (NullBus) PublishCaptured(ContentCaptured) {}

func (NullBus) Close() {}

// EmbeddedBus runs an in-process NATS server and a client connection to
// it.
type EmbeddedBus struct {
	server *natsserver.Server
	conn   *nats.Conn
	logger *zap.Logger
}

// Config for the embedded bus.
type Config struct {
	// Port for local subscribers; 0 picks a random free port, -1
	// disables external listeners.
	Port int
}

// NewEmbedded starts the in-process server and connects to it. On any
// failure the caller should fall back to NullBus.
func NewEmbedded(cfg Config, logger *zap.Logger) (*EmbeddedBus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &natsserver.Options{
		Host:    "127.0.0.1",
		Port:    cfg.Port,
		NoLog:   true,
		NoSigs:  true,
		MaxConn: 64,
	}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("eventbus: init server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("eventbus: server not ready")
	}

	conn, err := nats.Connect(srv.ClientURL(),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("eventbus: connect: %w", err)
	}

	logger.Info("event bus listening", zap.String("url", srv.ClientURL()))
	return &EmbeddedBus{server: srv, conn: conn, logger: logger}, nil
}

// ClientURL is the address local subscribers dial.
func (b *EmbeddedBus) ClientURL() string {
	return b.server.ClientURL()
}

// PublishCaptured publishes the event on its source's subject. Failures
// are logged and swallowed; events are a courtesy, the store is the
// truth.
func (b *EmbeddedBus) PublishCaptured(event ContentCaptured) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("event encode failed", zap.Error(err))
		return
	}
	if err := b.conn.Publish(SubjectFor(event.Source), payload); err != nil {
		b.logger.Warn("event publish failed", zap.Error(err))
	}
}

// Subscribe delivers decoded events for subject (use SubjectAll for
// every source) until the returned unsubscribe func runs.
func (b *EmbeddedBus) Subscribe(subject string, handler func(ContentCaptured)) (func(), error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event ContentCaptured
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn("event decode failed", zap.Error(err))
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscribe %s: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains the connection and stops the server.
func (b *EmbeddedBus) Close() {
	_ = b.conn.Drain()
	b.conn.Close()
	b.server.Shutdown()
}
