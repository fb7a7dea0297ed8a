package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice is a minimal Thunder JSON-RPC endpoint.
type fakeDevice struct {
	t           *testing.T
	connections atomic.Int32
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()
	d.connections.Add(1)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			d.t.Errorf("decode: %v", err)
			return
		}

		switch req.Method {
		case "Echo.1.echo":
			d.send(conn, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": req.Params})
		case "Fail.1.fail":
			d.send(conn, map[string]any{"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "Unknown method."}})
		case "Events.1.register":
			d.send(conn, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": 0})
			d.send(conn, map[string]any{"jsonrpc": "2.0", "method": "client.Events.events.ping",
				"params": map[string]any{"n": 1}})
		case "Drop.1.drop":
			return
		case "Silent.1.wait":
		default:
			d.send(conn, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": nil})
		}
	}
}

func (d *fakeDevice) send(conn *websocket.Conn, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		d.t.Errorf("marshal: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		d.t.Logf("write: %v", err)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeDevice) {
	t.Helper()

	device := &fakeDevice{t: t}
	srv := httptest.NewServer(device)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	c := New(Config{Host: host, Port: port, RequestTimeout: 2 * time.Second}, nil)
	t.Cleanup(func() { _ = c.Close() })
	return c, device
}

func TestConfig_URL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"defaults", Config{Host: "192.168.1.10"}, "ws://192.168.1.10:80/jsonrpc"},
		{"custom", Config{Host: "box", Port: 9998, Endpoint: "rpc", Protocol: "wss"}, "wss://box:9998/rpc"},
		{"protocol with colon", Config{Host: "box", Protocol: "ws:"}, "ws://box:80/jsonrpc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.URL())
		})
	}
}

func TestClient_Request(t *testing.T) {
	c, device := newTestClient(t)
	ctx := context.Background()

	assert.False(t, c.Connected())

	result, err := c.Request(ctx, "Echo.1.echo", map[string]any{"hello": "world"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(result))
	assert.True(t, c.Connected())

	result, err = c.Request(ctx, "Echo.1.echo", []int{1, 2})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(result))

	assert.Equal(t, int32(1), device.connections.Load(), "connection is reused")
}

func TestClient_RPCError(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Request(context.Background(), "Fail.1.fail", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, "Unknown method.", rpcErr.Message)
	assert.Equal(t, "rpc error -32601: Unknown method.", err.Error())
}

func TestClient_Notifications(t *testing.T) {
	c, _ := newTestClient(t)

	got := make(chan json.RawMessage, 1)
	remove := c.OnNotification("client.Events.events.ping", func(method string, params json.RawMessage) {
		assert.Equal(t, "client.Events.events.ping", method)
		got <- params
	})
	defer remove()

	_, err := c.Request(context.Background(), "Events.1.register", map[string]any{"event": "ping"})
	require.NoError(t, err)

	select {
	case params := <-got:
		assert.JSONEq(t, `{"n":1}`, string(params))
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestClient_RemoveNotificationHandler(t *testing.T) {
	c, _ := newTestClient(t)

	var calls atomic.Int32
	remove := c.OnNotification("client.Events.events.ping", func(string, json.RawMessage) {
		calls.Add(1)
	})
	remove()
	remove()

	_, err := c.Request(context.Background(), "Events.1.register", nil)
	require.NoError(t, err)

	// a follow-up round trip guarantees the notification has been read
	_, err = c.Request(context.Background(), "Echo.1.echo", nil)
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
}

func TestClient_ConnectionLost(t *testing.T) {
	c, device := newTestClient(t)
	ctx := context.Background()

	_, err := c.Request(ctx, "Drop.1.drop", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")

	require.Eventually(t, func() bool { return !c.Connected() }, 2*time.Second, 10*time.Millisecond)

	_, err = c.Request(ctx, "Echo.1.echo", "again")
	require.NoError(t, err)
	assert.Equal(t, int32(2), device.connections.Load())
}

func TestClient_FailPendingOnlyOnDroppedConnection(t *testing.T) {
	c := New(Config{Host: "box"}, nil)
	defer c.Close()

	dropped, redialed := &websocket.Conn{}, &websocket.Conn{}
	oldCh, newCh := make(chan reply, 1), make(chan reply, 1)

	c.mu.Lock()
	c.pending[1] = pendingCall{conn: dropped, ch: oldCh}
	c.pending[2] = pendingCall{conn: redialed, ch: newCh}
	c.mu.Unlock()

	c.failPending(dropped, errors.New("read: EOF"))

	select {
	case r := <-oldCh:
		assert.ErrorContains(t, r.err, "connection lost: read: EOF")
	default:
		t.Fatal("request on the dropped connection was not failed")
	}
	assert.Empty(t, newCh)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.pending, 1)
	assert.Contains(t, c.pending, int64(2))
}

func TestClient_RequestTimeout(t *testing.T) {
	c, _ := newTestClient(t)
	c.cfg.RequestTimeout = 50 * time.Millisecond

	_, err := c.Request(context.Background(), "Silent.1.wait", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Close(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Request(ctx, "Echo.1.echo", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Notify(ctx, "Echo.1.echo", nil), ErrClosed)
}

func TestClient_DialFailure(t *testing.T) {
	c := New(Config{Host: "127.0.0.1", Port: 1, DialTimeout: 200 * time.Millisecond}, nil)
	defer c.Close()

	_, err := c.Request(context.Background(), "Echo.1.echo", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial ws://127.0.0.1:1/jsonrpc")
}
