package promise

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// State is the settlement state of a Promise.
type State int

const (
	// Pending means the promise has not settled yet.
	Pending State = iota

	// Fulfilled means the promise settled with a value.
	Fulfilled

	// Rejected means the promise settled with an error.
	Rejected
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrNilRejection is used as the reason when a promise is rejected with a nil error.
	ErrNilRejection = errors.New("promise: rejected with nil error")

	// ErrSelfResolution is the reason a promise rejects when resolved with itself.
	ErrSelfResolution = errors.New("promise: resolved with itself")
)

// Callback is a Node-style completion function. On success err is nil and
// value holds the result; on failure err holds the reason and value is nil.
type Callback func(err error, value any)

// Thenable is implemented by promise-like values. A Promise resolved with a
// Thenable adopts its outcome.
type Thenable interface {
	Observe(fn func(value any, err error))
}

// PanicError is the rejection reason when a handler panics with a value that
// is not an error. Panics carrying an error reject with that error unchanged.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("promise: panic: %v", e.Value)
}

// Promise is a single-assignment asynchronous result.
type Promise struct {
	sched Scheduler

	mu        sync.Mutex
	locked    bool
	state     State
	value     any
	err       error
	listeners []func(any, error)
	done      chan struct{}
}

func newPromise(s Scheduler) *Promise {
	if s == nil {
		s = Goroutines
	}
	return &Promise{sched: s, done: make(chan struct{})}
}

// New returns a pending promise together with the functions that settle it.
// Only the first call to either function has an effect. A nil scheduler
// selects Goroutines.
func New(s Scheduler) (p *Promise, resolve func(value any), reject func(err error)) {
	p = newPromise(s)
	return p, p.resolve, p.reject
}

// Resolve returns a promise fulfilled with v, or following v if it is a Thenable.
func Resolve(v any) *Promise {
	return From(nil, v, nil)
}

// Reject returns a promise rejected with err.
func Reject(err error) *Promise {
	p := newPromise(nil)
	p.reject(err)
	return p
}

// From converts a (value, error) pair into a promise on scheduler s. A non-nil
// err rejects; a Thenable value is adopted; anything else fulfills.
func From(s Scheduler, v any, err error) *Promise {
	p := newPromise(s)
	p.locked = true
	p.settleFrom(v, err)
	return p
}

// Try runs fn synchronously and normalizes its outcome into a promise. A
// panic in fn becomes a rejection.
func Try(s Scheduler, fn func() (any, error)) *Promise {
	v, err := capture(fn)
	return From(s, v, err)
}

// Go runs fn on a new goroutine and returns a promise for its outcome. It is
// meant for handlers that block on I/O.
func Go(s Scheduler, fn func() (any, error)) *Promise {
	p := newPromise(s)
	p.locked = true
	go func() {
		p.settleFrom(capture(fn))
	}()
	return p
}

// State reports the current settlement state.
func (p *Promise) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done returns a channel that is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Await blocks until the promise settles or ctx is done. Await must not be
// called from a task running on the promise's own Loop when settlement
// depends on that loop.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Observe registers fn to receive the outcome. fn is always run through the
// scheduler, even when the promise has already settled.
func (p *Promise) Observe(fn func(value any, err error)) {
	if fn == nil {
		return
	}

	p.mu.Lock()
	if p.state == Pending {
		p.listeners = append(p.listeners, fn)
		p.mu.Unlock()
		return
	}
	v, err := p.value, p.err
	p.mu.Unlock()

	p.schedule(fn, v, err)
}

// Then returns a promise for the result of onFulfilled applied to the value.
// Rejections pass through untouched. A nil onFulfilled passes the value on.
func (p *Promise) Then(onFulfilled func(value any) (any, error)) *Promise {
	next := p.derive()
	p.Observe(func(v any, err error) {
		if err != nil || onFulfilled == nil {
			next.settleFrom(v, err)
			return
		}
		next.settleFrom(capture(func() (any, error) {
			return onFulfilled(v)
		}))
	})
	return next
}

// Catch returns a promise that recovers from a rejection with onRejected.
// Fulfilled values pass through untouched.
func (p *Promise) Catch(onRejected func(err error) (any, error)) *Promise {
	next := p.derive()
	p.Observe(func(v any, err error) {
		if err == nil || onRejected == nil {
			next.settleFrom(v, err)
			return
		}
		next.settleFrom(capture(func() (any, error) {
			return onRejected(err)
		}))
	})
	return next
}

// Finally returns a promise that runs onSettled after settlement and then
// carries the original outcome, unless onSettled panics.
func (p *Promise) Finally(onSettled func()) *Promise {
	next := p.derive()
	p.Observe(func(v any, err error) {
		if onSettled != nil {
			_, perr := capture(func() (any, error) {
				onSettled()
				return nil, nil
			})
			if perr != nil {
				next.settle(Rejected, nil, perr)
				return
			}
		}
		next.settleFrom(v, err)
	})
	return next
}

// Callback registers cb as a second sink and returns p so it can still be
// chained. cb runs exactly once, through the scheduler.
func (p *Promise) Callback(cb Callback) *Promise {
	if cb == nil {
		return p
	}
	p.Observe(func(v any, err error) {
		if err != nil {
			cb(err, nil)
			return
		}
		cb(nil, v)
	})
	return p
}

func (p *Promise) derive() *Promise {
	next := newPromise(p.sched)
	next.locked = true
	return next
}

func (p *Promise) lock() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locked {
		return false
	}
	p.locked = true
	return true
}

func (p *Promise) resolve(v any) {
	if p.lock() {
		p.adopt(v)
	}
}

func (p *Promise) reject(err error) {
	if p.lock() {
		p.settleFrom(nil, orNilRejection(err))
	}
}

func (p *Promise) settleFrom(v any, err error) {
	if err != nil {
		p.settle(Rejected, nil, err)
		return
	}
	p.adopt(v)
}

func (p *Promise) adopt(v any) {
	switch t := v.(type) {
	case *Promise:
		switch {
		case t == p:
			p.settle(Rejected, nil, ErrSelfResolution)
		case t == nil:
			p.settle(Fulfilled, nil, nil)
		default:
			p.follow(t)
		}
	case Thenable:
		p.follow(t)
	default:
		p.settle(Fulfilled, v, nil)
	}
}

// follow adopts the outcome of t. A panic in t.Observe rejects p.
func (p *Promise) follow(t Thenable) {
	defer func() {
		if r := recover(); r != nil {
			p.settle(Rejected, nil, panicReason(r))
		}
	}()
	t.Observe(p.settleFrom)
}

func (p *Promise) settle(state State, v any, err error) {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return
	}
	p.state, p.value, p.err = state, v, err
	listeners := p.listeners
	p.listeners = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range listeners {
		p.schedule(fn, v, err)
	}
}

func (p *Promise) schedule(fn func(any, error), v any, err error) {
	p.sched.Schedule(func() {
		fn(v, err)
	})
}

// capture runs fn and converts a panic into an error.
func capture(fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, panicReason(r)
		}
	}()
	return fn()
}

func panicReason(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}

func orNilRejection(err error) error {
	if err == nil {
		return ErrNilRejection
	}
	return err
}
