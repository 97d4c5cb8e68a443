package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps an OpenTelemetry tracer with job-specific span helpers.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer from tp.
func NewTracer(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// NewNoopTracer creates a tracer that does nothing.
func NewNoopTracer() *Tracer {
	return &Tracer{tracer: tracenoop.NewTracerProvider().Tracer("")}
}

// StartJob starts the root span of one job run.
func (t *Tracer) StartJob(ctx context.Context, appID int, runID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cyberia.job", trace.WithAttributes(
		AppIDAttr(appID),
		RunIDAttr(runID),
	))
}

// StartEndpointAttempt starts a span for trying one endpoint.
func (t *Tracer) StartEndpointAttempt(ctx context.Context, apiName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cyberia.endpoint", trace.WithAttributes(APINameAttr(apiName)))
}

// StartInstall starts a span for one installer run.
func (t *Tracer) StartInstall(ctx context.Context, appID int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cyberia.install", trace.WithAttributes(AppIDAttr(appID)))
}

// SetHTTPStatus records the response status on the span in ctx.
func (t *Tracer) SetHTTPStatus(ctx context.Context, statusCode int) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(AttrHTTPStatus, statusCode))
}

// RecordError records an error on the span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
