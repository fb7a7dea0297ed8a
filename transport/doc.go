// Package transport implements JSON-RPC 2.0 over a WebSocket connection to a
// Thunder device.
//
// The connection is opened lazily by the first request (or explicitly with
// Connect). Requests are correlated to responses by id; messages without an id
// are notifications and are routed to handlers registered with
// OnNotification. Notification handlers run on the read goroutine and must not
// block.
//
// If the connection drops, pending requests fail and the next request dials
// again. There is no retry or backoff.
package transport
