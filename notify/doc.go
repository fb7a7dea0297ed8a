// Package notify manages subscriptions to notifications pushed by a Thunder
// device.
//
// Thunder delivers events per plugin. A client asks for them with
//
//	<Plugin>.<version>.register   {"event": "<event>", "id": "client.<Plugin>.events"}
//
// after which the device sends notifications with the method
// client.<Plugin>.events.<event>. The Manager reference-counts local
// subscriptions so the register request is sent for the first subscriber of
// an event and the matching unregister request after the last one leaves.
//
// Subscriptions may carry a CEL filter evaluated against each event, with the
// variables plugin, event and params:
//
//	sub, err := m.Subscribe(ctx, "Controller", "statechange", handler,
//		notify.WithFilter(`params.state == "Activated"`))
//
// Every delivered event is also passed to the configured Sinks.
package notify
