// Package plugin holds the plugin registry and method resolver of the Thunder
// client.
//
// A plugin is a named namespace of methods. Its implementation, a Handler,
// lists method names and resolves a name to a Method:
//
//	type Method func(ctx context.Context, args ...any) (any, error)
//
// A Method may return a plain value, a promise-like value (anything that
// implements promise.Thenable), or an error. Panics are recovered by the
// caller and treated like returned errors.
//
// # Building handlers
//
// There are four ways to get a Handler:
//
//   - Methods, a plain map from name to Method.
//   - FromObject, which exposes the exported methods of any Go value under
//     lowerCamel names ("FreeRam" becomes "freeRam").
//   - NewConfig and New, the builder that also records versions and
//     descriptions for each method.
//   - Remote, which proxies methods to a plugin on the device.
//
// # Registry
//
// Registry maps plugin names to snapshots of their handlers. Register replaces
// an existing entry with the same name. Resolve reads the entry that is
// current at lookup time, so a registration racing with a call affects only
// calls that resolve after it.
package plugin
