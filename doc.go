// Package thunder is a client for the Thunder JSON-RPC API found on
// set-top boxes and other media devices.
//
// A device exposes its functionality as plugins, each a named set of
// methods. The client keeps a registry of plugins: the built-in device
// plugin, remote plugins that forward to the device, and local plugins
// registered by the application. Every call returns a *promise.Promise,
// whatever the method returned:
//
//	client, err := thunder.New(thunder.Config{Host: "192.168.1.10"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	v, err := client.Call(ctx, "device", "version").Await(ctx)
//
// Methods can be called argument-style through Call or object-style through
// a PluginProxy:
//
//	client.Plugin("device").Method("freeRam")(ctx)
//
// Both accept a trailing completion callback:
//
//	client.Call(ctx, "device", "version", func(err error, v any) {
//		...
//	})
//
// # Plugins
//
// RegisterPlugin accepts any plugin.Handler. plugin.Methods, plugin.FromObject,
// the plugin builder and plugin.Remote all produce one:
//
//	h, _ := plugin.FromObject(&Custom{})
//	client.RegisterPlugin("custom", h)
//
// # Notifications
//
// Subscribe registers for a plugin event on the device and delivers each
// notification to a handler, optionally filtered with a CEL expression:
//
//	sub, err := client.Subscribe(ctx, "Controller", "statechange", func(ev notify.Event) {
//		fmt.Println(ev.Params["callsign"], ev.Params["state"])
//	}, notify.WithFilter(`params.state == "Activated"`))
//	defer client.Unsubscribe(ctx, sub)
//
// # Observability
//
// Calls are traced with OpenTelemetry spans named thunder.call and counted
// in the thunder.calls and thunder.call.duration instruments. Logging uses
// log/slog.
package thunder
