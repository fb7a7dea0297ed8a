package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config describes where the device's JSON-RPC endpoint lives.
type Config struct {
	Host           string
	Port           int
	Endpoint       string
	Protocol       string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// WithDefaults fills unset fields with the Thunder defaults.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 80
	}
	if c.Endpoint == "" {
		c.Endpoint = "/jsonrpc"
	}
	if c.Protocol == "" {
		c.Protocol = "ws://"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return c
}

// URL returns the WebSocket URL, e.g. ws://192.168.1.10:80/jsonrpc.
func (c Config) URL() string {
	c = c.WithDefaults()

	protocol := c.Protocol
	if !strings.HasSuffix(protocol, "://") {
		protocol = strings.TrimSuffix(protocol, ":") + "://"
	}
	endpoint := c.Endpoint
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return protocol + c.Host + ":" + strconv.Itoa(c.Port) + endpoint
}

type reply struct {
	result json.RawMessage
	err    error
}

// pendingCall is a request waiting for its response on conn.
type pendingCall struct {
	conn *websocket.Conn
	ch   chan reply
}

// Client is a JSON-RPC client over a single WebSocket connection.
//
// Thread-safety: all methods are safe for concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu          sync.Mutex
	nextID      atomic.Int64
	pending     map[int64]pendingCall
	handlers    map[string]map[uint64]NotificationHandler
	nextHandler uint64

	closed atomic.Bool
	done   chan struct{}
}

// New returns a client for cfg. No connection is made until the first
// request or an explicit Connect.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.WithDefaults()

	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "transport"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
		},
		pending:  make(map[int64]pendingCall),
		handlers: make(map[string]map[uint64]NotificationHandler),
		done:     make(chan struct{}),
	}
}

// Connect opens the connection if it is not open yet.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connection(ctx)
	return err
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Request sends a request and waits for its result.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	ch := make(chan reply, 1)

	c.mu.Lock()
	c.pending[id] = pendingCall{conn: conn, ch: ch}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := &Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
	if err := c.write(conn, req); err != nil {
		return nil, fmt.Errorf("send request %s: %w", method, err)
	}
	c.logger.Debug("request sent", slog.String("method", method), slog.Int64("id", id))

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	case r := <-ch:
		return r.result, r.err
	}
}

// Notify sends a notification; no response is expected.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	conn, err := c.connection(ctx)
	if err != nil {
		return err
	}
	return c.write(conn, &Request{JSONRPC: "2.0", Method: method, Params: params})
}

// OnNotification registers h for notifications with the given method and
// returns a function that removes it.
func (c *Client) OnNotification(method string, h NotificationHandler) func() {
	c.mu.Lock()
	c.nextHandler++
	id := c.nextHandler
	if c.handlers[method] == nil {
		c.handlers[method] = make(map[uint64]NotificationHandler)
	}
	c.handlers[method][id] = h
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.handlers[method], id)
			if len(c.handlers[method]) == 0 {
				delete(c.handlers, method)
			}
		})
	}
}

// Close closes the connection. Pending and later requests fail with ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return conn.Close()
}

func (c *Client) connection(ctx context.Context) (*websocket.Conn, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	url := c.cfg.URL()
	conn, _, err := c.dialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c.logger.Info("connected", slog.String("url", url))

	c.conn = conn
	go c.readLoop(conn)
	return conn, nil
}

func (c *Client) write(conn *websocket.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("discarding malformed message", slog.String("error", err.Error()))
		return
	}

	switch {
	case env.ID != nil && env.Method == "":
		c.handleResponse(*env.ID, env.Result, env.Error)
	case env.ID == nil && env.Method != "":
		c.handleNotification(env.Method, env.Params)
	default:
		c.logger.Debug("ignoring message", slog.String("method", env.Method))
	}
}

func (c *Client) handleResponse(id int64, result json.RawMessage, rpcErr *RPCError) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("response without pending request", slog.Int64("id", id))
		return
	}

	if rpcErr != nil {
		call.ch <- reply{err: rpcErr}
		return
	}
	call.ch <- reply{result: result}
}

func (c *Client) handleNotification(method string, params json.RawMessage) {
	c.mu.Lock()
	handlers := make([]NotificationHandler, 0, len(c.handlers[method]))
	for _, h := range c.handlers[method] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(method, params)
	}
}

// drop forgets a broken connection and fails every pending request.
func (c *Client) drop(conn *websocket.Conn, cause error) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	_ = conn.Close()

	if c.closed.Load() {
		return
	}
	c.logger.Warn("connection lost", slog.String("error", cause.Error()))
	c.failPending(conn, cause)
}

// failPending fails the requests sent on conn. Requests already sent on a
// newer connection are left alone.
func (c *Client) failPending(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	var lost []chan reply
	for id, call := range c.pending {
		if call.conn == conn {
			lost = append(lost, call.ch)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, ch := range lost {
		ch <- reply{err: fmt.Errorf("connection lost: %w", cause)}
	}
}
