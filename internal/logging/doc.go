// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry)
//   - Automatic context field injection (trace_id, capture stream, content id)
//   - Defense-in-depth secret redaction
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx := logging.WithCapture(ctx, &logging.Capture{Daemon: "ingest", Source: "clipboard"})
//	ctx = logging.WithContentID(ctx, 42)
//	logger.Info(ctx, "content mirrored", zap.Duration("duration", d))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2026-07-30T10:15:30Z",
//	  "level": "info",
//	  "msg": "content mirrored",
//	  "trace_id": "abc123",
//	  "capture.daemon": "ingest",
//	  "capture.source": "clipboard",
//	  "content.id": 42,
//	  "duration": "45ms"
//	}
//
// # Configuration Precedence
//
// Configuration follows standard unified-ai precedence:
//  1. Defaults (NewDefaultConfig)
//  2. Settings file (settings.json)
//  3. Environment variables (UAI_LOGGING_*)
//
// # Secret Redaction
//
// The capture daemons handle screen text, clipboard contents, and file
// bodies; log lines must never leak what the privacy filter exists to
// suppress. Secrets are redacted at multiple layers:
//  1. Domain primitives (config.Secret type)
//  2. Encoder-level field name filtering
//  3. Encoder-level pattern matching
//
// Use helpers for manual redaction:
//
//	logger.Info(ctx, "auth received",
//	    logging.RedactedString("authorization", authHeader))
//
// # Sampling
//
// The capture loops tick continuously (a screen grab every few seconds,
// a clipboard poll twice a second, a filesystem event per save), so
// per-tick noise floods logs fast. Level-aware sampling keeps the
// volume bounded:
//   - Trace: first 1 per second, drop rest
//   - Debug: first 10 per second, drop rest
//   - Info: first 100, then 1 every 10
//   - Warn: first 100, then 1 every 100
//   - Error+: never sampled
//
// Disable for debugging:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
//
// # Performance
//
// Logging overhead: <1ms per entry in hot paths
// Zero allocations when level disabled
// Sampling reduces volume by ~90% in high-throughput scenarios
package logging
