package thunder

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zero-day-ai/thunder"

// telemetry holds the tracer and metric instruments for dispatch.
type telemetry struct {
	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

func newTelemetry(tracer trace.Tracer, meter metric.Meter) (*telemetry, error) {
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	calls, err := meter.Int64Counter(
		"thunder.calls",
		metric.WithDescription("Number of plugin method calls"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"thunder.call.duration",
		metric.WithDescription("Plugin method call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &telemetry{tracer: tracer, calls: calls, duration: duration}, nil
}

func (t *telemetry) start(ctx context.Context, pluginName, method string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "thunder.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("thunder.plugin", pluginName),
			attribute.String("thunder.method", method),
		))
}

// finish ends span and records the call metrics.
func (t *telemetry) finish(ctx context.Context, span trace.Span, pluginName, method string, started time.Time, err error) {
	outcome := "fulfilled"
	if err != nil {
		outcome = "rejected"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("thunder.outcome", outcome))
	span.End()

	opts := metric.WithAttributes(
		attribute.String("plugin", pluginName),
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	)
	t.calls.Add(ctx, 1, opts)
	t.duration.Record(ctx, float64(time.Since(started).Microseconds())/1000.0, opts)
}
