// Package observability provides OpenTelemetry instrumentation for download
// jobs: one span per job, per endpoint attempt and per installer run, plus
// job, attempt and byte counters.
//
// When no providers are configured, no-op implementations are used.
package observability

import "go.opentelemetry.io/otel/attribute"

// Instrumentation identity constants
const (
	TracerName = "cyberia/services"
	MeterName  = "cyberia/services"
)

// Attribute keys
const (
	AttrAppID      = "cyberia.appid"
	AttrRunID      = "cyberia.run_id"
	AttrAPIName    = "cyberia.api.name"
	AttrAPIResult  = "cyberia.api.result"
	AttrHTTPStatus = "http.status_code"
	AttrOutcome    = "cyberia.job.outcome"
	AttrBytes      = "cyberia.bytes"
)

// Endpoint attempt results for the cyberia.api.result attribute.
const (
	ResultUnavailable = "unavailable"
	ResultTransport   = "transport_error"
	ResultInvalid     = "invalid_archive"
	ResultDownloaded  = "downloaded"
	ResultCancelled   = "cancelled"
)

// AppIDAttr creates an attribute for the app id.
func AppIDAttr(appID int) attribute.KeyValue {
	return attribute.Int(AttrAppID, appID)
}

// RunIDAttr creates an attribute for the job run id.
func RunIDAttr(runID string) attribute.KeyValue {
	return attribute.String(AttrRunID, runID)
}

// APINameAttr creates an attribute for the endpoint name.
func APINameAttr(name string) attribute.KeyValue {
	return attribute.String(AttrAPIName, name)
}

// APIResultAttr creates an attribute for an endpoint attempt result.
func APIResultAttr(result string) attribute.KeyValue {
	return attribute.String(AttrAPIResult, result)
}

// BytesAttr creates an attribute for a streamed byte count.
func BytesAttr(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytes, n)
}

// OutcomeAttr creates an attribute for a job outcome.
func OutcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(AttrOutcome, outcome)
}
