// Package promise provides the asynchronous result type returned by every
// Thunder call.
//
// A Promise settles exactly once, either fulfilled with a value or rejected
// with an error. It can be consumed in two ways at the same time:
//
//   - Chaining: Then, Catch and Finally each return a new Promise, with the
//     usual semantics (a Catch handler recovers, Finally passes the outcome
//     through).
//   - Callback: Callback registers a Node-style func(err, value) that fires
//     once the promise settles.
//
// Neither sink ever runs inside the call that created or settled the
// promise. Work is handed to a Scheduler: by default every continuation gets
// its own goroutine, while a Loop reproduces a single-threaded event loop
// that the caller drives explicitly.
//
// Example:
//
//	p := promise.Try(nil, func() (any, error) {
//		return "😎", nil
//	})
//
//	v, err := p.Then(func(v any) (any, error) {
//		return strings.ToUpper(v.(string)), nil
//	}).Await(ctx)
package promise
