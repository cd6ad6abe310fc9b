package observability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used for flowstudio metrics.
const MeterName = "flowstudio"

// MetricsRecorder records flow engine metrics.
// Use NewMetricsRecorder for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records one node execution.
	RecordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, err error)

	// RecordRun records a finished run with its terminal status.
	RecordRun(ctx context.Context, status string, duration time.Duration)

	// RecordAudit records the encoded size of a saved audit record.
	RecordAudit(ctx context.Context, kind string, sizeBytes int64)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	runCount       metric.Int64Counter
	runLatency     metric.Float64Histogram
	auditSize      metric.Int64Histogram
}

// instruments creates instruments on one meter, keeping every error.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return c
}

func (in *instruments) millis(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) bytes(name, desc string) metric.Int64Histogram {
	h, err := in.meter.Int64Histogram(name, metric.WithDescription(desc), metric.WithUnit("By"))
	in.errs = append(in.errs, err)
	return h
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	in := &instruments{meter: meter}
	m := &otelMetrics{
		nodeExecutions: in.counter("flowstudio.node.executions", "Node executions by node type"),
		nodeLatency:    in.millis("flowstudio.node.latency_ms", "Node execution latency"),
		nodeErrors:     in.counter("flowstudio.node.errors", "Failed node executions by node type"),
		runCount:       in.counter("flowstudio.run.count", "Finished flow runs by status"),
		runLatency:     in.millis("flowstudio.run.latency_ms", "Flow run latency"),
		auditSize:      in.bytes("flowstudio.audit.size_bytes", "Encoded audit record size"),
	}
	if err := errors.Join(in.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider. Call otel.SetMeterProvider before constructing it.
// If instrument creation fails a no-op recorder is returned.
func NewMetricsRecorder() MetricsRecorder {
	return NewMetricsRecorderWithProvider(otel.GetMeterProvider())
}

// NewMetricsRecorderWithProvider returns a MetricsRecorder using mp.
func NewMetricsRecorderWithProvider(mp metric.MeterProvider) MetricsRecorder {
	m, err := newOtelMetrics(mp.Meter(MeterName))
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String(KeyError, err.Error()))
		return NoopMetrics{}
	}
	return m
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String(KeyNodeType, nodeType))
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, ms(duration), attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordRun(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(KeyStatus, status))
	m.runCount.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, ms(duration), attrs)
}

func (m *otelMetrics) RecordAudit(ctx context.Context, kind string, sizeBytes int64) {
	m.auditSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("kind", kind)))
}
