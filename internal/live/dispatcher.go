// Package live provides observable values whose notifications are delivered
// on a single dispatcher goroutine.
package live

import "sync"

// Dispatcher runs posted callbacks in order on its delivery goroutine.
type Dispatcher interface {
	Post(fn func())
}

// Flusher is implemented by dispatchers that can wait for queued callbacks.
type Flusher interface {
	Flush()
}

// Loop is a Dispatcher backed by one goroutine and an unbounded FIFO queue.
// Post never blocks, so callbacks may post further callbacks.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	stopped chan struct{}
}

// NewLoop starts a delivery goroutine.
func NewLoop() *Loop {
	l := &Loop{stopped: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}

// Post queues fn. Callbacks posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
}

// Flush blocks until every callback posted before the call has run.
// It must not be called from the loop goroutine.
func (l *Loop) Flush() {
	done := make(chan struct{})
	l.Post(func() { close(done) })
	select {
	case <-done:
	case <-l.stopped:
	}
}

// Close runs the callbacks already queued and stops the loop.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
	<-l.stopped
}

// Inline runs callbacks on the posting goroutine. Useful in tests.
type Inline struct{}

func (Inline) Post(fn func()) { fn() }

func (Inline) Flush() {}
