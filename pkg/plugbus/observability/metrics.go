package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records bus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPublish records one publish call with its fan-out size.
	RecordPublish(ctx context.Context, topic string, notified int, duration time.Duration, sync bool)

	// RecordDelivery records one handler invocation.
	RecordDelivery(ctx context.Context, topic string, duration time.Duration, panicked bool)

	// RecordRequest records one request/response round trip.
	RecordRequest(ctx context.Context, topic string, duration time.Duration, ok bool)

	// RecordDrop records a deferred delivery discarded on a full queue.
	RecordDrop(ctx context.Context, topic string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	publishes       metric.Int64Counter
	publishLatency  metric.Float64Histogram
	deliveries      metric.Int64Counter
	deliveryLatency metric.Float64Histogram
	handlerPanics   metric.Int64Counter
	requests        metric.Int64Counter
	requestLatency  metric.Float64Histogram
	drops           metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("plugbus")

	publishes, err := meter.Int64Counter("plugbus.publishes",
		metric.WithDescription("Number of publish calls"),
	)
	if err != nil {
		return nil, err
	}

	publishLatency, err := meter.Float64Histogram("plugbus.publish.latency_ms",
		metric.WithDescription("Publish call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("plugbus.deliveries",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("plugbus.delivery.latency_ms",
		metric.WithDescription("Handler invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	handlerPanics, err := meter.Int64Counter("plugbus.handler.panics",
		metric.WithDescription("Number of recovered handler panics"),
	)
	if err != nil {
		return nil, err
	}

	requests, err := meter.Int64Counter("plugbus.requests",
		metric.WithDescription("Number of request/response calls"),
	)
	if err != nil {
		return nil, err
	}

	requestLatency, err := meter.Float64Histogram("plugbus.request.latency_ms",
		metric.WithDescription("Request round-trip latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	drops, err := meter.Int64Counter("plugbus.drops",
		metric.WithDescription("Number of dropped async deliveries"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		publishes:       publishes,
		publishLatency:  publishLatency,
		deliveries:      deliveries,
		deliveryLatency: deliveryLatency,
		handlerPanics:   handlerPanics,
		requests:        requests,
		requestLatency:  requestLatency,
		drops:           drops,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordPublish records one publish call.
func (m *otelMetrics) RecordPublish(ctx context.Context, topic string, notified int, duration time.Duration, sync bool) {
	attrs := []attribute.KeyValue{
		attribute.String("topic", topic),
		attribute.Bool("sync", sync),
	}
	m.publishes.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.publishLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordDelivery records one handler invocation.
func (m *otelMetrics) RecordDelivery(ctx context.Context, topic string, duration time.Duration, panicked bool) {
	attrs := []attribute.KeyValue{
		attribute.String("topic", topic),
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.deliveryLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if panicked {
		m.handlerPanics.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRequest records one request round trip.
func (m *otelMetrics) RecordRequest(ctx context.Context, topic string, duration time.Duration, ok bool) {
	attrs := []attribute.KeyValue{
		attribute.String("topic", topic),
		attribute.Bool("ok", ok),
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.requestLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordDrop records a dropped async delivery.
func (m *otelMetrics) RecordDrop(ctx context.Context, topic string) {
	m.drops.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
