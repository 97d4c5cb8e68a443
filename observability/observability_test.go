package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.False(t, cfg.IsEnabled())
	require.NotNil(t, cfg.Tracer())
	require.NotNil(t, cfg.Metrics())
}

func TestNilConfigFallsBackToNoop(t *testing.T) {
	var cfg *Config
	assert.False(t, cfg.IsEnabled())

	ctx, span := cfg.Tracer().StartJob(context.Background(), 730, "run-1")
	require.NotNil(t, ctx)
	cfg.Tracer().RecordError(span, errors.New("boom"))
	span.End()

	cfg.Metrics().RecordJob(ctx, "done")
	cfg.Metrics().RecordInstall(ctx, time.Second, false)
}

func TestConfiguredProviders(t *testing.T) {
	cfg := NewConfig(
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithMeterProvider(metricnoop.NewMeterProvider()),
	)
	assert.True(t, cfg.IsEnabled())

	tracer := cfg.Tracer()
	ctx, job := tracer.StartJob(context.Background(), 730, "run-1")
	attemptCtx, attempt := tracer.StartEndpointAttempt(ctx, "Mirror")
	tracer.SetHTTPStatus(attemptCtx, 404)
	attempt.SetAttributes(APIResultAttr(ResultUnavailable), BytesAttr(0))
	attempt.End()
	job.SetAttributes(OutcomeAttr("failed"))
	job.End()

	metrics := cfg.Metrics()
	metrics.RecordAttempt(ctx, "Mirror", ResultUnavailable)
	metrics.RecordBytes(ctx, "Mirror", 1024)
	metrics.RecordJob(ctx, "failed")
}

func TestAttributes(t *testing.T) {
	assert.Equal(t, int64(730), AppIDAttr(730).Value.AsInt64())
	assert.Equal(t, "run-1", RunIDAttr("run-1").Value.AsString())
	assert.Equal(t, "Mirror", APINameAttr("Mirror").Value.AsString())
	assert.Equal(t, "done", OutcomeAttr("done").Value.AsString())
	assert.Equal(t, int64(42), BytesAttr(42).Value.AsInt64())
}
