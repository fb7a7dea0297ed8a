package thunder

import (
	"context"

	"github.com/zero-day-ai/thunder/promise"
)

// MethodFunc is a bound plugin method. It behaves exactly like Client.Call
// with the plugin and method names filled in.
type MethodFunc func(ctx context.Context, args ...any) *promise.Promise

// PluginProxy gives object-style access to a plugin:
//
//	client.Plugin("custom").Method("foo")(ctx, "bar")
//
// The proxy is live: it resolves the plugin on every call, so it sees
// plugins registered after it was created.
type PluginProxy struct {
	client *Client
	name   string
}

// Plugin returns a proxy for the plugin called name. The plugin does not
// have to be registered yet; calls through the proxy reject with
// plugin.ErrUnknownPlugin until it is.
func (c *Client) Plugin(name string) *PluginProxy {
	return &PluginProxy{client: c, name: name}
}

// Plugins returns a proxy for every registered plugin, keyed by name. The
// map is rebuilt from the registry on every call.
func (c *Client) Plugins() map[string]*PluginProxy {
	names := c.registry.Names()
	out := make(map[string]*PluginProxy, len(names))
	for _, name := range names {
		out[name] = c.Plugin(name)
	}
	return out
}

// Name returns the plugin name.
func (p *PluginProxy) Name() string {
	return p.name
}

// Registered reports whether the plugin is currently registered.
func (p *PluginProxy) Registered() bool {
	_, ok := p.client.registry.Lookup(p.name)
	return ok
}

// Methods returns the plugin's listed method names, or nil if it is not
// registered.
func (p *PluginProxy) Methods() []string {
	names, _ := p.client.registry.Lookup(p.name)
	return names
}

// Method returns a callable bound to method.
func (p *PluginProxy) Method(method string) MethodFunc {
	return func(ctx context.Context, args ...any) *promise.Promise {
		return p.client.dispatch(ctx, p.name, method, args)
	}
}

// Call invokes method on the plugin.
func (p *PluginProxy) Call(ctx context.Context, method string, args ...any) *promise.Promise {
	return p.client.dispatch(ctx, p.name, method, args)
}
