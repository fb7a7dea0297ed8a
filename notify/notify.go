package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zero-day-ai/thunder/transport"
)

var (
	// ErrInvalidSubscription is returned for a subscription request without a
	// plugin, event or handler.
	ErrInvalidSubscription = errors.New("invalid subscription")

	// ErrUnknownSubscription is returned when unsubscribing something the
	// Manager does not hold.
	ErrUnknownSubscription = errors.New("unknown subscription")
)

// Transport is the part of the JSON-RPC client the Manager needs.
type Transport interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
	OnNotification(method string, h transport.NotificationHandler) func()
}

// Event is a notification delivered to subscribers.
type Event struct {
	Plugin     string          `json:"plugin"`
	Name       string          `json:"event"`
	Params     map[string]any  `json:"params,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Handler receives events. It runs on the transport's read goroutine and
// must not block.
type Handler func(Event)

// Sink receives a copy of every delivered event.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	ID     string
	Plugin string
	Event  string

	seq     uint64
	handler Handler
	filter  *Filter
}

// Filter returns the subscription's filter expression, or "".
func (s *Subscription) Filter() string {
	if s.filter == nil {
		return ""
	}
	return s.filter.String()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithVersions sets the function that maps a plugin to the API version used
// in register and unregister requests. The default is always 1.
func WithVersions(fn func(plugin string) int) Option {
	return func(m *Manager) {
		if fn != nil {
			m.version = fn
		}
	}
}

// WithSink adds a sink for delivered events.
func WithSink(s Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	filter string
}

// WithFilter restricts delivery to events for which the CEL expression expr
// evaluates to true.
func WithFilter(expr string) SubscribeOption {
	return func(c *subscribeConfig) {
		c.filter = expr
	}
}

type topic struct {
	plugin string
	event  string
	subs   map[string]*Subscription
	remove func()
	ready  chan struct{}
	err    error
}

// Manager tracks subscriptions and keeps the device's registrations in step
// with them.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	conn    Transport
	logger  *slog.Logger
	version func(plugin string) int
	sinks   []Sink

	mu     sync.Mutex
	topics map[string]*topic
	seq    uint64
}

// NewManager returns a Manager sending requests through conn.
func NewManager(conn Transport, opts ...Option) *Manager {
	m := &Manager{
		conn:    conn,
		logger:  slog.Default(),
		version: func(string) int { return 1 },
		topics:  make(map[string]*topic),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "notify")
	return m
}

// Subscribe delivers events named event from plugin to h. The first
// subscriber for a plugin/event pair registers it on the device; later ones
// wait for that registration to finish and share it.
func (m *Manager) Subscribe(ctx context.Context, plugin, event string, h Handler, opts ...SubscribeOption) (*Subscription, error) {
	if plugin == "" || event == "" || h == nil {
		return nil, fmt.Errorf("%w: plugin, event and handler are required", ErrInvalidSubscription)
	}

	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := &Subscription{
		ID:      uuid.NewString(),
		Plugin:  plugin,
		Event:   event,
		handler: h,
	}
	if cfg.filter != "" {
		f, err := CompileFilter(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
		}
		sub.filter = f
	}

	key := topicKey(plugin, event)

	m.mu.Lock()
	m.seq++
	sub.seq = m.seq

	if tp, ok := m.topics[key]; ok {
		tp.subs[sub.ID] = sub
		m.mu.Unlock()
		return m.awaitReady(ctx, key, tp, sub)
	}

	tp := &topic{
		plugin: plugin,
		event:  event,
		subs:   map[string]*Subscription{sub.ID: sub},
		ready:  make(chan struct{}),
	}
	tp.remove = m.conn.OnNotification(NotificationMethod(plugin, event), func(_ string, params json.RawMessage) {
		m.deliver(tp, params)
	})
	m.topics[key] = tp
	m.mu.Unlock()

	_, err := m.conn.Request(ctx, m.method(plugin, "register"), registration(plugin, event))
	if err != nil {
		err = fmt.Errorf("register %s.%s: %w", plugin, event, err)

		m.mu.Lock()
		tp.err = err
		if m.topics[key] == tp {
			delete(m.topics, key)
		}
		m.mu.Unlock()

		tp.remove()
		close(tp.ready)
		return nil, err
	}
	close(tp.ready)

	m.logger.Debug("subscribed",
		slog.String("plugin", plugin),
		slog.String("event", event),
		slog.String("id", sub.ID))
	return sub, nil
}

func (m *Manager) awaitReady(ctx context.Context, key string, tp *topic, sub *Subscription) (*Subscription, error) {
	select {
	case <-tp.ready:
		if tp.err != nil {
			return nil, tp.err
		}
		return sub, nil
	case <-ctx.Done():
		m.mu.Lock()
		last := false
		if m.topics[key] == tp {
			delete(tp.subs, sub.ID)
			if len(tp.subs) == 0 {
				delete(m.topics, key)
				last = true
			}
		}
		m.mu.Unlock()

		if last {
			go m.release(context.WithoutCancel(ctx), tp)
		}
		return nil, ctx.Err()
	}
}

// release unregisters a topic abandoned by its last waiting subscriber.
func (m *Manager) release(ctx context.Context, tp *topic) {
	if err := m.unregister(ctx, tp); err != nil {
		m.logger.Warn("failed to release abandoned registration",
			slog.String("plugin", tp.plugin),
			slog.String("event", tp.event),
			slog.String("error", err.Error()))
	}
}

// Unsubscribe removes sub. The last subscriber of a plugin/event pair
// unregisters it on the device.
func (m *Manager) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return fmt.Errorf("%w: nil subscription", ErrInvalidSubscription)
	}

	key := topicKey(sub.Plugin, sub.Event)

	m.mu.Lock()
	tp, ok := m.topics[key]
	if !ok || tp.subs[sub.ID] == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, sub.ID)
	}
	delete(tp.subs, sub.ID)
	last := len(tp.subs) == 0
	if last {
		delete(m.topics, key)
	}
	m.mu.Unlock()

	m.logger.Debug("unsubscribed",
		slog.String("plugin", sub.Plugin),
		slog.String("event", sub.Event),
		slog.String("id", sub.ID))

	if !last {
		return nil
	}
	return m.unregister(ctx, tp)
}

// UnsubscribeAll drops every subscriber of plugin/event and unregisters it on
// the device. It is a no-op when nothing is subscribed.
func (m *Manager) UnsubscribeAll(ctx context.Context, plugin, event string) error {
	key := topicKey(plugin, event)

	m.mu.Lock()
	tp, ok := m.topics[key]
	if ok {
		delete(m.topics, key)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.unregister(ctx, tp)
}

// Subscriptions returns the number of live subscriptions.
func (m *Manager) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, tp := range m.topics {
		n += len(tp.subs)
	}
	return n
}

// Close unregisters every topic. Errors are joined.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	topics := make([]*topic, 0, len(m.topics))
	for key, tp := range m.topics {
		topics = append(topics, tp)
		delete(m.topics, key)
	}
	m.mu.Unlock()

	var errs []error
	for _, tp := range topics {
		if err := m.unregister(ctx, tp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) unregister(ctx context.Context, tp *topic) error {
	<-tp.ready
	if tp.err != nil {
		return nil
	}
	tp.remove()

	if _, err := m.conn.Request(ctx, m.method(tp.plugin, "unregister"), registration(tp.plugin, tp.event)); err != nil {
		return fmt.Errorf("unregister %s.%s: %w", tp.plugin, tp.event, err)
	}
	return nil
}

func (m *Manager) deliver(tp *topic, raw json.RawMessage) {
	ev := Event{
		Plugin:     tp.plugin,
		Name:       tp.event,
		Raw:        raw,
		ReceivedAt: time.Now(),
	}
	if len(raw) > 0 {
		var params map[string]any
		if err := json.Unmarshal(raw, &params); err != nil {
			m.logger.Debug("event params are not an object",
				slog.String("plugin", tp.plugin),
				slog.String("event", tp.event))
		} else {
			ev.Params = params
		}
	}

	m.mu.Lock()
	subs := make([]*Subscription, 0, len(tp.subs))
	for _, sub := range tp.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })

	for _, sub := range subs {
		if sub.filter != nil {
			ok, err := sub.filter.Match(ev)
			if err != nil {
				m.logger.Warn("filter failed",
					slog.String("id", sub.ID),
					slog.String("error", err.Error()))
				continue
			}
			if !ok {
				continue
			}
		}
		sub.handler(ev)
	}

	for _, s := range m.sinks {
		if err := s.Publish(context.Background(), ev); err != nil {
			m.logger.Warn("sink publish failed",
				slog.String("plugin", ev.Plugin),
				slog.String("event", ev.Name),
				slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) method(plugin, verb string) string {
	return plugin + "." + strconv.Itoa(m.version(plugin)) + "." + verb
}

// NotificationMethod returns the JSON-RPC method the device uses for events
// named event from plugin.
func NotificationMethod(plugin, event string) string {
	return ClientID(plugin) + "." + event
}

// ClientID returns the id sent with register requests for plugin.
func ClientID(plugin string) string {
	return "client." + plugin + ".events"
}

func registration(plugin, event string) map[string]any {
	return map[string]any{
		"event": event,
		"id":    ClientID(plugin),
	}
}

func topicKey(plugin, event string) string {
	return plugin + "\x00" + event
}
