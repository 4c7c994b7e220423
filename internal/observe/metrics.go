// Package observe is podscript's telemetry layer. Script, store, tool and
// HTTP activity is counted with OpenTelemetry instruments and traced with
// spans whose ids also appear in log lines.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed in
// Prometheus text format by the handler returned from [InitProvider]. Tests
// should use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all podscript metrics.
const meterName = "github.com/MrWong99/podscript"

// Metrics groups every instrument podscript records. Instruments are safe
// for concurrent use.
type Metrics struct {
	// --- Script editing ---

	// ScriptMutations counts successful script changes. Use with attributes:
	//   attribute.String("session", ...), attribute.String("kind", ...)
	ScriptMutations metric.Int64Counter

	// ScriptImports counts snapshot imports. Use with attributes:
	//   attribute.String("session", ...), attribute.String("status", ...)
	ScriptImports metric.Int64Counter

	// ObserverFailures counts update callbacks that panicked.
	ObserverFailures metric.Int64Counter

	// CascadedReplicas counts replicas removed together with their role.
	CascadedReplicas metric.Int64Counter

	// ScriptWords is the current word count of a session's script.
	ScriptWords metric.Int64Gauge

	// ScriptDuration is the current estimated runtime of a session's script.
	ScriptDuration metric.Float64Gauge

	// --- Persistence ---

	// StoreDuration tracks snapshot store latency. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("op", ...)
	StoreDuration metric.Float64Histogram

	// StoreErrors counts failed store operations.
	StoreErrors metric.Int64Counter

	// --- MCP tools ---

	// ToolExecutionDuration tracks MCP tool handler latency.
	ToolExecutionDuration metric.Float64Histogram

	// ToolCalls counts MCP tool invocations by tool and status ("ok" or
	// "error").
	ToolCalls metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open script sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveStreams tracks the number of connected statistics streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP ---

	// HTTPRequestDuration tracks HTTP request processing time by method,
	// route pattern and status class.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates every instrument on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ScriptMutations, err = m.Int64Counter("podscript.script.mutations",
		metric.WithDescription("Successful script changes by session and kind."),
	); err != nil {
		return nil, err
	}
	if met.ScriptImports, err = m.Int64Counter("podscript.script.imports",
		metric.WithDescription("Snapshot imports by session and status."),
	); err != nil {
		return nil, err
	}
	if met.ObserverFailures, err = m.Int64Counter("podscript.script.observer_failures",
		metric.WithDescription("Update callbacks that panicked."),
	); err != nil {
		return nil, err
	}
	if met.CascadedReplicas, err = m.Int64Counter("podscript.script.cascaded_replicas",
		metric.WithDescription("Replicas removed together with their role."),
	); err != nil {
		return nil, err
	}
	if met.ScriptWords, err = m.Int64Gauge("podscript.script.words",
		metric.WithDescription("Spoken words in a session's script."),
	); err != nil {
		return nil, err
	}
	if met.ScriptDuration, err = m.Float64Gauge("podscript.script.duration",
		metric.WithDescription("Estimated runtime of a session's script."),
		metric.WithUnit("min"),
	); err != nil {
		return nil, err
	}

	if met.StoreDuration, err = m.Float64Histogram("podscript.store.duration",
		metric.WithDescription("Latency of snapshot store operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StoreErrors, err = m.Int64Counter("podscript.store.errors",
		metric.WithDescription("Failed snapshot store operations by backend and op."),
	); err != nil {
		return nil, err
	}

	if met.ToolExecutionDuration, err = m.Float64Histogram("podscript.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool handlers."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("podscript.tool.calls",
		metric.WithDescription("MCP tool invocations by tool and status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("podscript.active_sessions",
		metric.WithDescription("Number of open script sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("podscript.active_streams",
		metric.WithDescription("Number of connected statistics streams."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("podscript.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status class."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns metrics on the global meter provider, created on
// first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordToolCall records one tool invocation and its latency in seconds.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolExecutionDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordStoreOp records one store operation. A non-nil err also increments
// [Metrics.StoreErrors].
func (m *Metrics) RecordStoreOp(ctx context.Context, backend, op string, seconds float64, err error) {
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("op", op),
	)
	m.StoreDuration.Record(ctx, seconds, attrs)
	if err != nil {
		m.StoreErrors.Add(ctx, 1, attrs)
	}
}
