package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the job metric instruments.
type Metrics struct {
	jobCount        metric.Int64Counter
	attemptCount    metric.Int64Counter
	bytesDownloaded metric.Int64Counter
	installDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	return newMetrics(mp.Meter(MeterName))
}

// NewNoopMetrics creates metrics that do nothing.
func NewNoopMetrics() *Metrics {
	return newMetrics(noop.NewMeterProvider().Meter(""))
}

func newMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}
	var err error

	m.jobCount, err = meter.Int64Counter(
		"cyberia.job.count",
		metric.WithDescription("Finished download jobs by outcome"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		m.jobCount, _ = meter.Int64Counter("cyberia.job.count")
	}

	m.attemptCount, err = meter.Int64Counter(
		"cyberia.endpoint.attempts",
		metric.WithDescription("Endpoint attempts by endpoint and result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		m.attemptCount, _ = meter.Int64Counter("cyberia.endpoint.attempts")
	}

	m.bytesDownloaded, err = meter.Int64Counter(
		"cyberia.download.bytes",
		metric.WithDescription("Bytes streamed from manifest endpoints"),
		metric.WithUnit("By"),
	)
	if err != nil {
		m.bytesDownloaded, _ = meter.Int64Counter("cyberia.download.bytes")
	}

	m.installDuration, err = meter.Float64Histogram(
		"cyberia.install.duration",
		metric.WithDescription("Duration of installer runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		m.installDuration, _ = meter.Float64Histogram("cyberia.install.duration")
	}

	return m
}

// RecordJob counts a finished job.
func (m *Metrics) RecordJob(ctx context.Context, outcome string) {
	m.jobCount.Add(ctx, 1, metric.WithAttributes(OutcomeAttr(outcome)))
}

// RecordAttempt counts one endpoint attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, apiName, result string) {
	m.attemptCount.Add(ctx, 1, metric.WithAttributes(APINameAttr(apiName), APIResultAttr(result)))
}

// RecordBytes adds n streamed bytes for apiName.
func (m *Metrics) RecordBytes(ctx context.Context, apiName string, n int64) {
	if n > 0 {
		m.bytesDownloaded.Add(ctx, n, metric.WithAttributes(APINameAttr(apiName)))
	}
}

// RecordInstall records an installer run duration.
func (m *Metrics) RecordInstall(ctx context.Context, duration time.Duration, failed bool) {
	outcome := "success"
	if failed {
		outcome = "failed"
	}
	m.installDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(OutcomeAttr(outcome)))
}
