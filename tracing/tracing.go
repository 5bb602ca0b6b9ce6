// Package tracing provides OpenTelemetry spans for cache operations and
// remote fetches. It is entirely optional — spans are only recorded when a
// [Config] with a real TracerProvider is wired in; a nil Config falls back to
// the global provider, which is a no-op unless the host app installed one.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the OpenTelemetry configuration used for cache spans.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider
}

// tracer returns a configured [trace.Tracer]. Safe on a nil Config.
func (c *Config) tracer() trace.Tracer {
	var tp trace.TracerProvider
	if c != nil && c.TracerProvider != nil {
		tp = c.TracerProvider
	} else {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer("github.com/nestfall/stash/tracing")
}

// StartCacheOp opens a client span for a cache operation on key.
func StartCacheOp(ctx context.Context, cfg *Config, op, key string) (context.Context, trace.Span) {
	ctx, span := cfg.tracer().Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("cache.key", key),
	)
	return ctx, span
}

// StartFetch opens a client span for a remote fetch strategy.
func StartFetch(ctx context.Context, cfg *Config, name string) (context.Context, trace.Span) {
	ctx, span := cfg.tracer().Start(ctx, "fetch."+name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("fetch.strategy", name),
	)
	return ctx, span
}

// SetOutcome records how a cache read resolved (fresh, stale, miss, forced).
func SetOutcome(span trace.Span, outcome string) {
	span.SetAttributes(attribute.String("cache.outcome", outcome))
}

// End records the error status (if any) and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
