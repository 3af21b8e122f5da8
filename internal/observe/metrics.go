// Package observe provides application-wide observability primitives for the
// voice reception platform: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all platform metrics.
const meterName = "github.com/MrWong99/glyphoxa"

// Metrics holds all OpenTelemetry metric instruments for the application.
// Counter names mirror the closed per-tenant metric name set (spec §6); all
// fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// CallDuration tracks end-to-end call session duration.
	CallDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// CallCount counts completed call sessions. Use with attribute:
	//   attribute.String("tenant_id", ...)
	CallCount metric.Int64Counter

	// TokensInput counts LLM input tokens consumed. Use with attribute:
	//   attribute.String("tenant_id", ...)
	TokensInput metric.Int64Counter

	// TokensOutput counts LLM output tokens generated. Use with attribute:
	//   attribute.String("tenant_id", ...)
	TokensOutput metric.Int64Counter

	// BookingSuccess counts successful appointment bookings. Use with attribute:
	//   attribute.String("tenant_id", ...)
	BookingSuccess metric.Int64Counter

	// BookingFailed counts failed appointment booking attempts. Use with attribute:
	//   attribute.String("tenant_id", ...)
	BookingFailed metric.Int64Counter

	// VoiceWebhookOK counts successfully handled inbound voice webhooks.
	// Use with attribute: attribute.String("tenant_id", ...)
	VoiceWebhookOK metric.Int64Counter

	// VoiceWebhookError counts rejected or failed inbound voice webhooks.
	// Use with attribute: attribute.String("tenant_id", ...)
	VoiceWebhookError metric.Int64Counter

	// StreamConnectOK counts successful media-stream socket upgrades.
	// Use with attribute: attribute.String("tenant_id", ...)
	StreamConnectOK metric.Int64Counter

	// StreamConnectError counts failed media-stream socket upgrades.
	// Use with attribute: attribute.String("tenant_id", ...)
	StreamConnectError metric.Int64Counter

	// FallbackTriggered counts graduated-fallback activations. Use with
	// attributes: attribute.String("tenant_id", ...), attribute.String("level", ...)
	FallbackTriggered metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live call sessions.
	ActiveSessions metric.Int64UpDownCounter

	// AdmittedCalls tracks the number of calls currently holding an
	// admission slot from the Coordinator.
	AdmittedCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// callDurationBuckets defines histogram bucket boundaries (in seconds) sized
// for whole call sessions rather than individual pipeline stages.
var callDurationBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("glyphoxa.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("glyphoxa.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("glyphoxa.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("glyphoxa.call.duration",
		metric.WithDescription("End-to-end call session duration."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callDurationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("glyphoxa.tool_execution.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("glyphoxa.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("glyphoxa.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.CallCount, err = m.Int64Counter("glyphoxa.call_count",
		metric.WithDescription("Total completed call sessions by tenant."),
	); err != nil {
		return nil, err
	}
	if met.TokensInput, err = m.Int64Counter("glyphoxa.tokens_input",
		metric.WithDescription("Total LLM input tokens consumed by tenant."),
	); err != nil {
		return nil, err
	}
	if met.TokensOutput, err = m.Int64Counter("glyphoxa.tokens_output",
		metric.WithDescription("Total LLM output tokens generated by tenant."),
	); err != nil {
		return nil, err
	}
	if met.BookingSuccess, err = m.Int64Counter("glyphoxa.booking_success",
		metric.WithDescription("Total successful appointment bookings by tenant."),
	); err != nil {
		return nil, err
	}
	if met.BookingFailed, err = m.Int64Counter("glyphoxa.booking_failed",
		metric.WithDescription("Total failed appointment booking attempts by tenant."),
	); err != nil {
		return nil, err
	}
	if met.VoiceWebhookOK, err = m.Int64Counter("glyphoxa.voice_webhook_ok",
		metric.WithDescription("Total successfully handled inbound voice webhooks by tenant."),
	); err != nil {
		return nil, err
	}
	if met.VoiceWebhookError, err = m.Int64Counter("glyphoxa.voice_webhook_error",
		metric.WithDescription("Total rejected or failed inbound voice webhooks by tenant."),
	); err != nil {
		return nil, err
	}
	if met.StreamConnectOK, err = m.Int64Counter("glyphoxa.stream_connect_ok",
		metric.WithDescription("Total successful media-stream socket upgrades by tenant."),
	); err != nil {
		return nil, err
	}
	if met.StreamConnectError, err = m.Int64Counter("glyphoxa.stream_connect_error",
		metric.WithDescription("Total failed media-stream socket upgrades by tenant."),
	); err != nil {
		return nil, err
	}
	if met.FallbackTriggered, err = m.Int64Counter("glyphoxa.fallback_triggered",
		metric.WithDescription("Total graduated-fallback activations by tenant and level."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("glyphoxa.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("glyphoxa.active_sessions",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}
	if met.AdmittedCalls, err = m.Int64UpDownCounter("glyphoxa.admitted_calls",
		metric.WithDescription("Number of calls currently holding a coordinator admission slot."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("glyphoxa.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordFallbackTriggered is a convenience method that records a graduated
// fallback activation for tenant at the given level ("1", "2", or "3").
func (m *Metrics) RecordFallbackTriggered(ctx context.Context, tenantID, level string) {
	m.FallbackTriggered.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("level", level),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
