package thunder

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/zero-day-ai/thunder/notify"
	"github.com/zero-day-ai/thunder/plugin"
	"github.com/zero-day-ai/thunder/promise"
	"github.com/zero-day-ai/thunder/transport"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Conn is the connection to the device. *transport.Client implements it.
type Conn interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
	OnNotification(method string, h transport.NotificationHandler) func()
	Close() error
}

// Option configures a Client.
type Option func(*options)

type namedHandler struct {
	name    string
	handler plugin.Handler
}

type options struct {
	logger    *slog.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	scheduler promise.Scheduler
	conn      Conn
	plugins   []namedHandler
	remotes   []string
	sinks     []notify.Sink
}

// WithLogger sets the logger. By default the client logs JSON to stdout at
// Info, or Debug when Config.Debug is set.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer sets the tracer used for call spans. The default is the global
// otel tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithMeter sets the meter used for call metrics. The default is the global
// otel meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithScheduler sets the scheduler that runs promise continuations and
// callbacks. Use a *promise.Loop to run them on a single goroutine.
func WithScheduler(s promise.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithTransport replaces the WebSocket connection. Config.Host is not
// required when a transport is given.
func WithTransport(conn Conn) Option {
	return func(o *options) {
		o.conn = conn
	}
}

// WithPlugin registers h under name at construction, after the built-ins.
func WithPlugin(name string, h plugin.Handler) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, namedHandler{name: name, handler: h})
	}
}

// WithRemotePlugins registers plugins that forward every method to the
// device plugin of the same name.
func WithRemotePlugins(names ...string) Option {
	return func(o *options) {
		o.remotes = append(o.remotes, names...)
	}
}

// WithSink adds a sink that receives every delivered notification.
func WithSink(s notify.Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, s)
	}
}
