package detector

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/metaop/internal/oplog"
)

const instrumentationName = "github.com/roach88/metaop/detector"

// Telemetry records detection metrics and traces.
//
// Thread-safety: Telemetry is safe for concurrent use; one instance can be
// shared by every Detector in a Pool.
type Telemetry struct {
	tracer trace.Tracer

	detectTotal    metric.Int64Counter
	groupsTotal    metric.Int64Counter
	errorsTotal    metric.Int64Counter
	detectDuration metric.Float64Histogram
}

// NewTelemetry creates instruments from the given providers. Nil providers
// fall back to the otel globals.
func NewTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) (*Telemetry, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	meter := mp.Meter(instrumentationName)

	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}
	var err error

	t.detectTotal, err = meter.Int64Counter(
		"metaop_detect_total",
		metric.WithDescription("Total number of detection passes"),
	)
	if err != nil {
		return nil, err
	}

	t.groupsTotal, err = meter.Int64Counter(
		"metaop_groups_total",
		metric.WithDescription("Total meta groups produced, by strategy"),
	)
	if err != nil {
		return nil, err
	}

	t.errorsTotal, err = meter.Int64Counter(
		"metaop_strategy_errors_total",
		metric.WithDescription("Total recovered strategy failures"),
	)
	if err != nil {
		return nil, err
	}

	t.detectDuration, err = meter.Float64Histogram(
		"metaop_detect_duration_seconds",
		metric.WithDescription("Duration of detection passes"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// startSpan creates a span covering the detection of one operation.
func (t *Telemetry) startSpan(ctx context.Context, op *oplog.Operation) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "Detector.Run",
		trace.WithAttributes(
			attribute.String("operation.id", op.ID),
			attribute.String("operation.name", op.Name),
			attribute.Int("operation.records", len(op.SubOperations)),
		),
	)
}

// setSpanResult sets the result attributes on a detection span.
func setSpanResult(span trace.Span, report *Report) {
	span.SetAttributes(
		attribute.Int("detector.groups", report.Groups),
		attribute.Int("detector.discarded", report.Discarded),
		attribute.Int("detector.errors", len(report.Errors)),
	)
}

// record adds the outcome of one pass to the instruments.
func (t *Telemetry) record(ctx context.Context, report *Report) {
	t.detectTotal.Add(ctx, 1)
	t.detectDuration.Record(ctx, report.Duration.Seconds())
	for name, n := range report.GroupsByStrategy {
		t.groupsTotal.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("strategy", name),
		))
	}
	if n := len(report.Errors); n > 0 {
		t.errorsTotal.Add(ctx, int64(n))
	}
}
