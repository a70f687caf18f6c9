package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the plugbus tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("plugbus")

// StartPublishSpan starts a span for an event publish. Callers that
// publish inside a traced operation use this to tie fan-out to it.
func StartPublishSpan(ctx context.Context, topic, senderID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "plugbus.publish",
		trace.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("sender_id", senderID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartRequestSpan starts a span for a request/response round trip.
func StartRequestSpan(ctx context.Context, topic, senderID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "plugbus.request",
		trace.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("sender_id", senderID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
