package device

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zero-day-ai/thunder/plugin"
	"github.com/zero-day-ai/thunder/promise"
)

type call struct {
	plugin, method string
	params         any
}

type fakeRequester struct {
	result any
	err    error
	calls  []call
}

func (f *fakeRequester) Request(_ context.Context, plugin, method string, params any) *promise.Promise {
	f.calls = append(f.calls, call{plugin, method, params})
	return promise.From(nil, f.result, f.err)
}

// await invokes fn and waits for the promise it returns.
func await(t *testing.T, fn plugin.Method, args ...any) (any, error) {
	t.Helper()
	v, err := fn(context.Background(), args...)
	require.NoError(t, err)
	p, ok := v.(*promise.Promise)
	require.True(t, ok, "device methods resolve asynchronously")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.Await(ctx)
}

const systemInfo = `{"version":"1.0#14452f612c3747645d54974255d11b8f3b4faa54","uptime":120,"totalram":655757312,"freeram":383389696,"devicename":"buildroot","cpuload":"2","serialnumber":"00000000e3a2b3a8","time":"Mon, 11 Mar 2019 13:42:17"}`

func TestNew_Methods(t *testing.T) {
	assert.Equal(t, []string{"freeRam", "version"}, New(&fakeRequester{}).Methods())
}

func TestFreeRam(t *testing.T) {
	req := &fakeRequester{result: json.RawMessage(systemInfo)}
	fn, ok := New(req).Lookup("freeRam")
	require.True(t, ok)

	v, err := await(t, fn)
	require.NoError(t, err)
	assert.Equal(t, uint64(383389696), v)

	require.Len(t, req.calls, 1)
	assert.Equal(t, "DeviceInfo", req.calls[0].plugin)
	assert.Equal(t, "systeminfo", req.calls[0].method)
	assert.Nil(t, req.calls[0].params)
}

func TestFreeRam_Missing(t *testing.T) {
	req := &fakeRequester{result: json.RawMessage(`{"version":"1.0"}`)}
	fn, _ := New(req).Lookup("freeRam")

	v, err := await(t, fn)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestVersion(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   any
	}{
		{"strips build hash", json.RawMessage(systemInfo), "1.0"},
		{"no hash", json.RawMessage(`{"version":"2.3.4"}`), "2.3.4"},
		{"decoded map", map[string]any{"version": "3.0#abc"}, "3.0"},
		{"missing", json.RawMessage(`{}`), ""},
		{"nil result", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, _ := New(&fakeRequester{result: tt.result}).Lookup("version")
			v, err := await(t, fn, map[string]any{"verbose": true})
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestVersion_ForwardsParams(t *testing.T) {
	req := &fakeRequester{result: json.RawMessage(systemInfo)}
	fn, _ := New(req).Lookup("version")

	_, err := await(t, fn, map[string]any{"verbose": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"verbose": true}, req.calls[0].params)
}

func TestErrors(t *testing.T) {
	t.Run("request rejection passes through", func(t *testing.T) {
		reason := errors.New("😭")
		fn, _ := New(&fakeRequester{err: reason}).Lookup("freeRam")
		_, err := await(t, fn)
		assert.Same(t, reason, err)
	})

	t.Run("invalid JSON rejects", func(t *testing.T) {
		fn, _ := New(&fakeRequester{result: json.RawMessage(`{"version":`)}).Lookup("version")
		_, err := await(t, fn)
		assert.ErrorContains(t, err, "not valid JSON")
	})
}
