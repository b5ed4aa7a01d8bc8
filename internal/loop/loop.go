// Package loop provides the single-threaded task queue that owns all client
// state. Tasks posted from any goroutine run one at a time, in order, on the
// goroutine driving Run. Blocking work is started with Go and its completion
// re-enters the queue.
package loop

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
)

// Loop is a FIFO of tasks executed serially.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	inflight sync.WaitGroup

	warnDepth int
	warned    bool
	observe   func(depth int)
	afterTask func()
}

// New returns an empty loop. warnDepth is a soft threshold: when the queue
// grows past it a warning is logged once until it drains. Zero disables it.
func New(warnDepth int) *Loop {
	return &Loop{
		wake:      make(chan struct{}, 1),
		warnDepth: warnDepth,
	}
}

// SetDepthObserver registers fn to receive the queue depth after every post.
// It must be set before the loop is shared.
func (l *Loop) SetDepthObserver(fn func(depth int)) {
	l.observe = fn
}

// SetAfterTask registers fn to run on the loop after every task, including
// tasks that panicked. It must be set before the loop is shared.
func (l *Loop) SetAfterTask(fn func()) {
	l.afterTask = fn
}

// Post enqueues fn. It never blocks and is safe for concurrent use.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	depth := len(l.queue)
	warn := false
	if l.warnDepth > 0 && depth > l.warnDepth && !l.warned {
		l.warned = true
		warn = true
	}
	l.mu.Unlock()

	if warn {
		log.Printf("[loop] queue depth %d exceeds %d", depth, l.warnDepth)
	}
	if l.observe != nil {
		l.observe(depth)
	}

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Go runs work on a new goroutine. If work returns a non-nil completion, the
// completion is posted back to the loop. work must not touch loop-owned state.
func (l *Loop) Go(work func() func()) {
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		if done := work(); done != nil {
			l.Post(done)
		}
	}()
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending executes queued tasks until the queue is empty, including tasks
// posted while draining, and returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		if len(batch) == 0 {
			l.warned = false
		}
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			l.run(fn)
			n++
		}
	}
}

// Run drives the loop until ctx is cancelled.
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

// Settle drains the queue and waits for all work started with Go, repeating
// until nothing is queued or in flight. It must not be called while Run is
// active on another goroutine.
func (l *Loop) Settle() {
	for {
		l.RunPending()
		l.inflight.Wait()
		if l.Len() == 0 {
			return
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[loop] task panic: %v\n%s", r, debug.Stack())
		}
		if l.afterTask != nil {
			l.afterTask()
		}
	}()
	fn()
}
