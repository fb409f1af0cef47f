package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all OTEL metric instruments for pane-driver.
// All counters are cumulative and safe for concurrent use. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Monitor loop
	Ticks                metric.Int64Counter
	ProcessorInvocations metric.Int64Counter
	TasksDispatched      metric.Int64Counter
	Halts                metric.Int64Counter

	// Session controller calls, partitioned by operation and outcome
	SessionOperations metric.Int64Counter
}

// NewMetrics creates all metric instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Ticks, err = meter.Int64Counter("monitor.ticks",
		metric.WithDescription("Poll ticks, partitioned by outcome (idle, dispatch)"),
		metric.WithUnit("{tick}"))
	if err != nil {
		return nil, err
	}

	m.ProcessorInvocations, err = meter.Int64Counter("processor.invocations",
		metric.WithDescription("Processor calls, partitioned by processor name"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}

	m.TasksDispatched, err = meter.Int64Counter("tasks.dispatched",
		metric.WithDescription("Tasks typed into the session by processors"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}

	m.Halts, err = meter.Int64Counter("monitor.halts",
		metric.WithDescription("Monitor loop halts, partitioned by reason (stopped, error, interrupted)"))
	if err != nil {
		return nil, err
	}

	m.SessionOperations, err = meter.Int64Counter("session.operations",
		metric.WithDescription("Multiplexer operations issued by the driver"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTick records one poll tick.
func (m *Metrics) RecordTick(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Ticks.Add(ctx, 1, metric.WithAttributes(attribute.String("tick.outcome", outcome)))
}

// RecordInvocation records one processor call.
func (m *Metrics) RecordInvocation(ctx context.Context, processor string) {
	if m == nil {
		return
	}
	m.ProcessorInvocations.Add(ctx, 1, metric.WithAttributes(attribute.String("processor.name", processor)))
}

// RecordDispatched records tasks dispatched during a tick.
func (m *Metrics) RecordDispatched(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TasksDispatched.Add(ctx, int64(n))
}

// RecordHalt records why the monitor loop stopped.
func (m *Metrics) RecordHalt(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Halts.Add(ctx, 1, metric.WithAttributes(attribute.String("halt.reason", reason)))
}

// RecordSessionOp records a multiplexer operation and whether it failed.
func (m *Metrics) RecordSessionOp(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	m.SessionOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("session.op", op),
		attribute.Bool("session.error", err != nil),
	))
}
