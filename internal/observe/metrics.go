// Package observe provides the adapter's observability primitives:
// OpenTelemetry metrics and tracing, plus the slog setup that ties them
// together.
//
// Tests should build a [Metrics] with [NewMetrics] over their own
// [metric.MeterProvider] rather than relying on the global one.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all adapter metrics.
const meterName = "github.com/timeforged/timeforged-mcp"

// Metrics holds the metric instruments. Safe for concurrent use.
type Metrics struct {
	// BackendRequests counts outbound requests by method, path and status
	// ("ok", "http_error", "timeout", "error").
	BackendRequests metric.Int64Counter

	// BackendDuration tracks outbound request latency.
	BackendDuration metric.Float64Histogram

	// ToolCalls counts tool invocations by tool name and status.
	ToolCalls metric.Int64Counter

	// ToolDuration tracks end-to-end tool handler latency.
	ToolDuration metric.Float64Histogram
}

// latencyBuckets in seconds; the backend deadline is 10s.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.BackendRequests, err = m.Int64Counter("timeforged.backend.requests",
		metric.WithDescription("Outbound TimeForged API requests by method, path and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("timeforged.backend.duration",
		metric.WithDescription("Latency of outbound TimeForged API requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("timeforged.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("timeforged.tool.duration",
		metric.WithDescription("Latency of tool handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a lazily created [Metrics] bound to the global
// meter provider. Call it after [InitProvider] so the instruments export.
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

// RecordBackendRequest records one outbound request.
func (m *Metrics) RecordBackendRequest(ctx context.Context, method, path, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)
	m.BackendRequests.Add(ctx, 1, attrs)
	m.BackendDuration.Record(ctx, seconds, attrs)
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, attrs)
}
