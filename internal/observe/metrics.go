// Package observe provides application-wide observability primitives for
// Switchyard: OpenTelemetry metrics, distributed tracing, and structured
// logging helpers.
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

// meterName is the instrumentation scope name used for all Switchyard metrics.
const meterName = "github.com/switchyard-ai/switchyard"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SelectionDuration tracks end-to-end tool selection latency. Use with
	// attributes:
	//   attribute.String("strategy", ...), attribute.String("status", ...)
	SelectionDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding provider call latency.
	EmbeddingDuration metric.Float64Histogram

	// CompletionDuration tracks LLM completion latency for catalog ranking.
	CompletionDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// IndexedTools counts tools written to a catalog. Use with attributes:
	//   attribute.String("strategy", ...), attribute.String("extension", ...)
	IndexedTools metric.Int64Counter

	// RecordedCalls counts tool invocations recorded into the call history.
	RecordedCalls metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// SelectionErrors counts failed tool selections. Use with attribute:
	//   attribute.String("strategy", ...)
	SelectionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveExtensions tracks the number of currently connected extensions.
	ActiveExtensions metric.Int64UpDownCounter

	// ActiveSessions tracks the number of live routing sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both local catalog lookups and remote provider round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SelectionDuration, err = m.Float64Histogram("switchyard.selection.duration",
		metric.WithDescription("End-to-end tool selection latency by strategy and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("switchyard.embedding.duration",
		metric.WithDescription("Latency of embedding provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CompletionDuration, err = m.Float64Histogram("switchyard.completion.duration",
		metric.WithDescription("Latency of LLM completions used for catalog ranking."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("switchyard.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.IndexedTools, err = m.Int64Counter("switchyard.catalog.indexed_tools",
		metric.WithDescription("Total tools written to a catalog by strategy and extension."),
	); err != nil {
		return nil, err
	}
	if met.RecordedCalls, err = m.Int64Counter("switchyard.history.recorded_calls",
		metric.WithDescription("Total tool invocations recorded into the call history."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("switchyard.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.SelectionErrors, err = m.Int64Counter("switchyard.selection.errors",
		metric.WithDescription("Total failed tool selections by strategy."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveExtensions, err = m.Int64UpDownCounter("switchyard.active_extensions",
		metric.WithDescription("Number of currently connected extensions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("switchyard.active_sessions",
		metric.WithDescription("Number of live routing sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("switchyard.http.request.duration",
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

// RecordSelection records a completed tool selection: its latency and, when
// status is not "ok", an error counter increment.
func (m *Metrics) RecordSelection(ctx context.Context, strategy, status string, seconds float64) {
	m.SelectionDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.String("status", status),
		),
	)
	if status != "ok" {
		m.SelectionErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("strategy", strategy)),
		)
	}
}

// RecordIndexedTools records n tools written to a catalog.
func (m *Metrics) RecordIndexedTools(ctx context.Context, strategy, extension string, n int64) {
	m.IndexedTools.Add(ctx, n,
		metric.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.String("extension", extension),
		),
	)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}
