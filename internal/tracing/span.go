package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartRequestSpan starts a client span for one call to the checkout API,
// named "<METHOD> <path>".
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, path, scenario string) (context.Context, trace.Span) {
	spanName := method + " request"
	if path != "" {
		spanName = method + " " + path
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", method),
	)
	if path != "" {
		span.SetAttributes(attribute.String("url.path", path))
	}
	if scenario != "" {
		span.SetAttributes(attribute.String("checkoutrace.scenario", scenario))
	}
	return ctx, span
}

// ResponseAttributes describes how a checkout response was classified.
func ResponseAttributes(status int, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("http.response.status_code", status),
		attribute.String("checkoutrace.outcome", outcome),
	}
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
