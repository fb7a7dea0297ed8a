package promise

import (
	"context"
	"sync"
)

// Scheduler runs continuations of settled promises. Implementations must not
// run the task inline in Schedule.
type Scheduler interface {
	Schedule(task func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(task func())

// Schedule calls f(task).
func (f SchedulerFunc) Schedule(task func()) {
	f(task)
}

// Goroutines is the default Scheduler. Each task runs on its own goroutine.
var Goroutines Scheduler = SchedulerFunc(func(task func()) {
	go task()
})

// Loop is a single-threaded, cooperative Scheduler. Tasks are queued in FIFO
// order and only run when the owner calls RunPending or Run, which makes it
// possible to observe a call before any of its continuations fire.
//
// Loop is safe for concurrent use; tasks may be scheduled from any goroutine.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

// NewLoop returns an empty Loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Schedule appends task to the queue.
func (l *Loop) Schedule(task func()) {
	if task == nil {
		return
	}

	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs queued tasks until the queue is empty, including tasks
// scheduled by the tasks it runs. It returns the number of tasks executed.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
		n++
	}
}

// Run processes tasks as they arrive until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}
