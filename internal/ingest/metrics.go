package ingest

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/storage"
)

const ingestInstrumentationName = "github.com/unified-ai/core/internal/ingest"

// Metrics instruments the ingest pipeline.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	ingested  metric.Int64Counter
	dropped   metric.Int64Counter
	redacted  metric.Int64Counter
	latency   metric.Float64Histogram
	queueSize metric.Int64ObservableGauge
}

// NewMetrics registers the pipeline's instruments. queueDepth is sampled
// on every collection to expose backpressure.
func NewMetrics(logger *zap.Logger, queueDepth func() int64) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(ingestInstrumentationName),
		logger: logger,
	}

	var err error
	m.ingested, err = m.meter.Int64Counter(
		"captured.ingest.observations_total",
		metric.WithDescription("Observations written through the pipeline, labeled by source"),
	)
	if err != nil {
		logger.Warn("failed to create ingested counter", zap.Error(err))
	}

	m.dropped, err = m.meter.Int64Counter(
		"captured.ingest.dropped_total",
		metric.WithDescription("Observations dropped before storage, labeled by source and reason (suppressed, duplicate, empty, error)"),
	)
	if err != nil {
		logger.Warn("failed to create dropped counter", zap.Error(err))
	}

	m.redacted, err = m.meter.Int64Counter(
		"captured.ingest.redactions_total",
		metric.WithDescription("PII/credential spans replaced before storage, labeled by kind"),
	)
	if err != nil {
		logger.Warn("failed to create redacted counter", zap.Error(err))
	}

	m.latency, err = m.meter.Float64Histogram(
		"captured.ingest.write_duration_seconds",
		metric.WithDescription("Time from observation receipt to row commit"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0),
	)
	if err != nil {
		logger.Warn("failed to create latency histogram", zap.Error(err))
	}

	if queueDepth != nil {
		m.queueSize, err = m.meter.Int64ObservableGauge(
			"captured.ingest.queue_depth",
			metric.WithDescription("Observations waiting in the ingest channel"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(queueDepth())
				return nil
			}),
		)
		if err != nil {
			logger.Warn("failed to create queue gauge", zap.Error(err))
		}
	}
	return m
}

func (m *Metrics) recordIngested(ctx context.Context, source storage.Source, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", string(source)))
	if m.ingested != nil {
		m.ingested.Add(ctx, 1, attrs)
	}
	if m.latency != nil {
		m.latency.Record(ctx, seconds, attrs)
	}
}

func (m *Metrics) recordDropped(ctx context.Context, source storage.Source, reason string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", string(source)),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) recordRedactions(ctx context.Context, kinds []string) {
	if m == nil || m.redacted == nil {
		return
	}
	for _, kind := range kinds {
		m.redacted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}
