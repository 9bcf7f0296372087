package live

import "sync"

// Observable is a read-only view of a Value.
type Observable[T any] interface {
	Get() T
	// Observe registers fn and delivers the current value to it. The returned
	// func unregisters fn; callbacks still queued for it are skipped.
	Observe(fn func(T)) (cancel func())
	// ObserveChanges is Observe without the delivery of the current value.
	ObserveChanges(fn func(T)) (cancel func())
}

// Value holds the latest T and notifies observers through a Dispatcher.
// Every Set bumps a version; an observer never receives a version older than
// one it has already seen, whatever order the dispatcher runs callbacks in.
type Value[T any] struct {
	mu        sync.RWMutex
	current   T
	version   uint64
	observers map[uint64]*observer[T]
	next      uint64
	d         Dispatcher
}

type observer[T any] struct {
	fn   func(T)
	last uint64
}

// NewValue returns a Value holding initial.
func NewValue[T any](d Dispatcher, initial T) *Value[T] {
	return &Value[T]{
		current:   initial,
		version:   1,
		observers: make(map[uint64]*observer[T]),
		d:         d,
	}
}

// Get returns the latest value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Set stores x and posts it to every observer.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	v.current = x
	v.version++
	version := v.version
	ids := make([]uint64, 0, len(v.observers))
	for id := range v.observers {
		ids = append(ids, id)
	}
	v.mu.Unlock()
	for _, id := range ids {
		v.deliver(id, version, x)
	}
}

func (v *Value[T]) Observe(fn func(T)) func() {
	return v.observe(fn, true)
}

// ObserveChanges registers fn for values set after the call. The current
// value is not delivered.
func (v *Value[T]) ObserveChanges(fn func(T)) func() {
	return v.observe(fn, false)
}

func (v *Value[T]) observe(fn func(T), withCurrent bool) func() {
	v.mu.Lock()
	id := v.next
	v.next++
	o := &observer[T]{fn: fn}
	if !withCurrent {
		o.last = v.version
	}
	v.observers[id] = o
	x, version := v.current, v.version
	v.mu.Unlock()

	if withCurrent {
		v.deliver(id, version, x)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.observers, id)
			v.mu.Unlock()
		})
	}
}

func (v *Value[T]) deliver(id, version uint64, x T) {
	v.d.Post(func() {
		v.mu.Lock()
		o, ok := v.observers[id]
		if !ok || version <= o.last {
			v.mu.Unlock()
			return
		}
		o.last = version
		fn := o.fn
		v.mu.Unlock()
		fn(x)
	})
}
