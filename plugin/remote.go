package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zero-day-ai/thunder/promise"
)

// Requester sends a request to a plugin on the device. The returned promise
// resolves with the raw JSON result.
type Requester interface {
	Request(ctx context.Context, plugin, method string, params any) *promise.Promise
}

// Remote returns a Handler that proxies calls to the device plugin callsign.
// The first call argument, if any, is sent as the request params and the
// promise resolves with the decoded JSON result.
//
// With no methods listed every method name is forwarded.
func Remote(req Requester, callsign string, methods ...string) Handler {
	r := &remote{
		req:      req,
		callsign: callsign,
		set:      make(map[string]struct{}, len(methods)),
	}
	for _, m := range methods {
		if m == "" {
			continue
		}
		if _, dup := r.set[m]; dup {
			continue
		}
		r.set[m] = struct{}{}
		r.names = append(r.names, m)
	}
	sort.Strings(r.names)
	return r
}

type remote struct {
	req      Requester
	callsign string
	names    []string
	set      map[string]struct{}
}

func (r *remote) Methods() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

func (r *remote) Lookup(name string) (Method, bool) {
	if name == "" {
		return nil, false
	}
	if len(r.set) > 0 {
		if _, ok := r.set[name]; !ok {
			return nil, false
		}
	}
	return r.method(name), true
}

func (r *remote) acceptsAny() bool {
	return len(r.set) == 0
}

func (r *remote) method(name string) Method {
	return func(ctx context.Context, args ...any) (any, error) {
		var params any
		if len(args) > 0 {
			params = args[0]
		}
		return r.req.Request(ctx, r.callsign, name, params).Then(DecodeJSON), nil
	}
}

// DecodeJSON decodes a json.RawMessage or []byte result into its generic Go
// form. Other values are returned unchanged.
func DecodeJSON(v any) (any, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		return v, nil
	}

	if len(raw) == 0 {
		return nil, nil
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}
