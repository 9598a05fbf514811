// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context. The daemon
// serves exactly one local user, so there is no tenant dimension;
// entries correlate by capture stream (which daemon, which source) and
// by the content row they concern.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	// Capture-stream context
	if capture := CaptureFromContext(ctx); capture != nil {
		fields = append(fields,
			zap.String("capture.daemon", capture.Daemon),
			zap.String("capture.source", capture.Source),
		)
	}

	// Content row context
	if contentID := ContentIDFromContext(ctx); contentID > 0 {
		fields = append(fields, zap.Int64("content.id", contentID))
	}

	// Request ID (the local HTTP API)
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// Context key types
type captureCtxKey struct{}
type contentCtxKey struct{}
type requestCtxKey struct{}

// Capture identifies which capture stream an entry belongs to: the
// daemon that produced it (screen, clipboard, filesystem, ingest) and
// the source stream it was working on.
type Capture struct {
	Daemon string
	Source string
}

// Validation constants
const (
	maxCaptureFieldLen = 64
	maxIDLen           = 128
)

var (
	// captureFieldPattern allows alphanumeric, hyphen, underscore
	captureFieldPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// idPattern allows alphanumeric, hyphen, underscore
	idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// validateCaptureField validates a capture field (daemon or source).
func validateCaptureField(field, name string) error {
	if field == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(field) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(field) > maxCaptureFieldLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxCaptureFieldLen)
	}
	if !captureFieldPattern.MatchString(field) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// validateID validates a request ID.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// CaptureFromContext extracts the capture stream from context.
func CaptureFromContext(ctx context.Context) *Capture {
	if c, ok := ctx.Value(captureCtxKey{}).(*Capture); ok {
		return c
	}
	return nil
}

// WithCapture adds the capture stream to context.
// Panics if capture is nil or contains invalid field values.
func WithCapture(ctx context.Context, capture *Capture) context.Context {
	if capture == nil {
		panic("logging: capture cannot be nil")
	}
	if err := validateCaptureField(capture.Daemon, "capture.Daemon"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	if err := validateCaptureField(capture.Source, "capture.Source"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, captureCtxKey{}, capture)
}

// ContentIDFromContext extracts the content row id from context.
// Returns 0 when none is set.
func ContentIDFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(contentCtxKey{}).(int64); ok {
		return id
	}
	return 0
}

// WithContentID adds a content row id to context.
// Panics if contentID is not positive.
func WithContentID(ctx context.Context, contentID int64) context.Context {
	if contentID <= 0 {
		panic(fmt.Sprintf("logging: contentID must be positive, got %d", contentID))
	}
	return context.WithValue(ctx, contentCtxKey{}, contentID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
