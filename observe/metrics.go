package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records resilience and bulk-run telemetry.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRetry records one retry of a named operation.
	RecordRetry(ctx context.Context, op string, attempt int)

	// RecordCircuitTransition records a circuit breaker state change.
	RecordCircuitTransition(ctx context.Context, op, from, to string)

	// RecordBulkRun records a completed bulk run with its accounting.
	RecordBulkRun(ctx context.Context, workflow string, succeeded, failed int, duration time.Duration)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	retries     metric.Int64Counter
	transitions metric.Int64Counter
	bulkItems   metric.Int64Counter
	runDuration metric.Float64Histogram
}

// newMetrics creates a new Metrics instance with the given meter.
func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	retries, err := meter.Int64Counter(
		"outreach.retry.count",
		metric.WithDescription("Retries performed per operation"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"outreach.circuit.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	bulkItems, err := meter.Int64Counter(
		"outreach.bulk.items",
		metric.WithDescription("Completed bulk items by outcome"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"outreach.bulk.run_duration_ms",
		metric.WithDescription("Bulk run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		retries:     retries,
		transitions: transitions,
		bulkItems:   bulkItems,
		runDuration: runDuration,
	}, nil
}

func (m *metricsImpl) RecordRetry(ctx context.Context, op string, attempt int) {
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Int("attempt", attempt),
	))
}

func (m *metricsImpl) RecordCircuitTransition(ctx context.Context, op, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *metricsImpl) RecordBulkRun(ctx context.Context, workflow string, succeeded, failed int, duration time.Duration) {
	workflowAttr := attribute.String("workflow", workflow)
	if succeeded > 0 {
		m.bulkItems.Add(ctx, int64(succeeded), metric.WithAttributes(
			workflowAttr, attribute.Bool("success", true)))
	}
	if failed > 0 {
		m.bulkItems.Add(ctx, int64(failed), metric.WithAttributes(
			workflowAttr, attribute.Bool("success", false)))
	}
	m.runDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(workflowAttr))
}

// noopMetrics drops all measurements.
type noopMetrics struct{}

func (noopMetrics) RecordRetry(context.Context, string, int) {}

func (noopMetrics) RecordCircuitTransition(context.Context, string, string, string) {}

func (noopMetrics) RecordBulkRun(context.Context, string, int, int, time.Duration) {}

// NewNopMetrics returns a Metrics that records nothing.
func NewNopMetrics() Metrics {
	return noopMetrics{}
}

var _ Metrics = (*metricsImpl)(nil)
