package thunder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/zero-day-ai/thunder/health"
	"github.com/zero-day-ai/thunder/notify"
	"github.com/zero-day-ai/thunder/plugin"
	"github.com/zero-day-ai/thunder/plugins/device"
	"github.com/zero-day-ai/thunder/promise"
	"github.com/zero-day-ai/thunder/transport"
)

// Instance is the client surface applications program against.
type Instance interface {
	// Call invokes method on the named plugin. A promise.Callback or
	// func(error, any) as the last argument is used as a completion
	// callback and is not passed to the method.
	Call(ctx context.Context, pluginName, method string, args ...any) *promise.Promise

	// Subscribe delivers the plugin's notifications named event to h.
	Subscribe(ctx context.Context, pluginName, event string, h notify.Handler, opts ...notify.SubscribeOption) (*notify.Subscription, error)

	// Unsubscribe cancels a subscription.
	Unsubscribe(ctx context.Context, sub *notify.Subscription) error

	// RegisterPlugin adds or replaces the plugin called name.
	RegisterPlugin(name string, h plugin.Handler) error
}

// Client is the Instance implementation. It owns the plugin registry, the
// device connection and the notification subscriptions.
//
// Thread-safety: all methods are safe for concurrent use.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	sched    promise.Scheduler
	registry *plugin.Registry
	conn     Conn
	notifier *notify.Manager
	tel      *telemetry

	closed atomic.Bool
}

var _ Instance = (*Client)(nil)

// New builds a client for the device described by cfg. The connection is
// opened lazily by the first remote call or subscription.
//
// The built-in device plugin is always registered. Plugins given with
// WithRemotePlugins and WithPlugin follow, in that order.
func New(cfg Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg.ApplyDefaults()
	if o.conn == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger := o.logger
	if logger == nil {
		level := slog.LevelInfo
		if cfg.Debug {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}

	sched := o.scheduler
	if sched == nil {
		sched = promise.Goroutines
	}

	conn := o.conn
	if conn == nil {
		conn = transport.New(cfg.transportConfig(), logger)
	}

	tel, err := newTelemetry(o.tracer, o.meter)
	if err != nil {
		return nil, NewInternalError("New", fmt.Errorf("failed to create metric instruments: %w", err))
	}

	notifyOpts := []notify.Option{
		notify.WithLogger(logger),
		notify.WithVersions(cfg.Version),
	}
	for _, s := range o.sinks {
		notifyOpts = append(notifyOpts, notify.WithSink(s))
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		sched:    sched,
		registry: plugin.NewRegistry(logger.With("component", "registry")),
		conn:     conn,
		notifier: notify.NewManager(conn, notifyOpts...),
		tel:      tel,
	}

	req := &requester{conn: conn, cfg: cfg, sched: sched}

	if err := c.registry.Register(device.Name, device.New(req)); err != nil {
		return nil, NewInternalError("New", err)
	}
	for _, name := range o.remotes {
		if err := c.registry.Register(name, plugin.Remote(req, name)); err != nil {
			return nil, NewConfigurationError("New", err).WithContext(map[string]any{"plugin": name})
		}
	}
	for _, p := range o.plugins {
		if err := c.registry.Register(p.name, p.handler); err != nil {
			return nil, NewConfigurationError("New", err).WithContext(map[string]any{"plugin": p.name})
		}
	}

	logger.Debug("client created",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.Any("plugins", c.registry.Names()))

	return c, nil
}

// Config returns the configuration with defaults applied.
func (c *Client) Config() Config {
	return c.cfg
}

// RegisterPlugin adds or replaces the plugin called name. The plugin is
// callable through Call and Plugin as soon as RegisterPlugin returns.
func (c *Client) RegisterPlugin(name string, h plugin.Handler) error {
	return c.registry.Register(name, h)
}

// Subscribe delivers the plugin's notifications named event to h.
func (c *Client) Subscribe(ctx context.Context, pluginName, event string, h notify.Handler, opts ...notify.SubscribeOption) (*notify.Subscription, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	sub, err := c.notifier.Subscribe(ctx, pluginName, event, h, opts...)
	if err != nil {
		return nil, NewNotificationError("Client.Subscribe", err).WithContext(map[string]any{
			"plugin": pluginName,
			"event":  event,
		})
	}
	return sub, nil
}

// Unsubscribe cancels a subscription returned by Subscribe.
func (c *Client) Unsubscribe(ctx context.Context, sub *notify.Subscription) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if err := c.notifier.Unsubscribe(ctx, sub); err != nil {
		return NewNotificationError("Client.Unsubscribe", err)
	}
	return nil
}

// UnsubscribeAll cancels every subscription to the plugin's event.
func (c *Client) UnsubscribeAll(ctx context.Context, pluginName, event string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if err := c.notifier.UnsubscribeAll(ctx, pluginName, event); err != nil {
		return NewNotificationError("Client.UnsubscribeAll", err).WithContext(map[string]any{
			"plugin": pluginName,
			"event":  event,
		})
	}
	return nil
}

// Health reports device reachability and registry state.
func (c *Client) Health(ctx context.Context) health.HealthStatus {
	return health.Combine(
		health.NetworkCheck(ctx, c.cfg.Host, c.cfg.Port),
		health.RegistryCheck(c.registry.Names()),
	)
}

// Close unregisters all subscriptions on a best-effort basis and closes the
// connection. Calling Close more than once is a no-op.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.closeTimeout())
	defer cancel()

	if err := c.notifier.Close(ctx); err != nil {
		c.logger.Warn("failed to unregister notifications", slog.String("error", err.Error()))
	}

	if err := c.conn.Close(); err != nil {
		return NewTransportError("Client.Close", err)
	}
	return nil
}

func (c *Client) closeTimeout() time.Duration {
	if c.cfg.RequestTimeout > 0 {
		return c.cfg.RequestTimeout
	}
	return 10 * time.Second
}

// requester sends plugin requests over the connection using the configured
// plugin versions.
type requester struct {
	conn  Conn
	cfg   Config
	sched promise.Scheduler
}

func (r *requester) Request(ctx context.Context, pluginName, method string, params any) *promise.Promise {
	name := r.cfg.MethodName(pluginName, method)
	return promise.Go(r.sched, func() (any, error) {
		res, err := r.conn.Request(ctx, name, params)
		if err != nil {
			return nil, NewTransportError("Request", err).WithContext(map[string]any{"method": name})
		}
		return res, nil
	})
}
