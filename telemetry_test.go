package thunder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zero-day-ai/thunder/plugin"
	"github.com/zero-day-ai/thunder/promise"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := make(map[attribute.Key]string)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestCall_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	loop := promise.NewLoop()
	c, _ := newTestClient(t, WithTracer(tp.Tracer("test")), WithScheduler(loop))
	require.NoError(t, c.RegisterPlugin("p", plugin.Methods{
		"ok":   func(context.Context, ...any) (any, error) { return 1, nil },
		"fail": func(context.Context, ...any) (any, error) { return nil, errors.New("nope") },
	}))

	c.Call(context.Background(), "p", "ok")
	c.Call(context.Background(), "p", "fail")
	c.Call(context.Background(), "missing", "x")
	assert.Empty(t, recorder.Ended(), "spans end when the promise settles on the loop")

	loop.RunPending()

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	for _, span := range spans {
		assert.Equal(t, "thunder.call", span.Name())
	}

	ok := spanAttrs(spans[0])
	assert.Equal(t, "p", ok["thunder.plugin"])
	assert.Equal(t, "ok", ok["thunder.method"])
	assert.Equal(t, "fulfilled", ok["thunder.outcome"])
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	fail := spanAttrs(spans[1])
	assert.Equal(t, "rejected", fail["thunder.outcome"])
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "nope", spans[1].Status().Description)

	missing := spanAttrs(spans[2])
	assert.Equal(t, "missing", missing["thunder.plugin"])
	assert.Equal(t, "rejected", missing["thunder.outcome"])
}
