// Package buffer provides a generic, thread-safe drop-oldest ring buffer.
//
// It decouples producers that must never block (the processor's ack path)
// from consumers that may stall (a secondary store mid-outage). When the ring
// is full the oldest item is dropped and the drop callback fires; statistics
// are always collected.
package buffer

import (
	"context"
	"sync"
	"sync/atomic"
)

// DropCallback is invoked with each item dropped by capacity overflow or by
// Close. It runs outside the ring's lock.
type DropCallback[T any] func(item T)

// Stats is a point-in-time snapshot of ring counters.
type Stats struct {
	Writes uint64
	Reads  uint64
	Drops  uint64
	Size   int
}

// Ring is a fixed-capacity drop-oldest ring buffer.
type Ring[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []T
	head     int
	tail     int
	size     int
	closed   bool
	dropFn   DropCallback[T]

	writes atomic.Uint64
	reads  atomic.Uint64
	drops  atomic.Uint64
}

// Option configures a Ring.
type Option[T any] func(*Ring[T])

// WithDropCallback sets a callback invoked for every dropped item.
func WithDropCallback[T any](fn DropCallback[T]) Option[T] {
	return func(r *Ring[T]) { r.dropFn = fn }
}

// NewRing creates a ring holding at most capacity items. Capacities below 1
// are clamped to 1.
func NewRing[T any](capacity int, opts ...Option[T]) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{items: make([]T, capacity)}
	r.notEmpty = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Put adds an item, dropping the oldest when full. It never blocks. The
// boolean reports whether an item was dropped to make room. Put on a closed
// ring drops the new item.
func (r *Ring[T]) Put(item T) bool {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		r.drops.Add(1)
		if r.dropFn != nil {
			r.dropFn(item)
		}
		return true
	}

	var dropped T
	didDrop := false
	if r.size == len(r.items) {
		dropped = r.items[r.tail]
		r.tail = (r.tail + 1) % len(r.items)
		r.size--
		didDrop = true
		r.drops.Add(1)
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	r.size++
	r.writes.Add(1)
	r.notEmpty.Signal()
	r.mu.Unlock()

	if didDrop && r.dropFn != nil {
		r.dropFn(dropped)
	}
	return didDrop
}

// Get removes and returns the oldest item without blocking.
func (r *Ring[T]) Get() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.take()
}

// GetWait blocks until an item is available, the context is cancelled, or
// the ring is closed and drained. The boolean is false only when no item
// will ever arrive.
func (r *Ring[T]) GetWait(ctx context.Context) (T, bool) {
	var zero T

	// A cond cannot wait on a context, so cancellation is bridged by a
	// broadcast from a watcher goroutine.
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.notEmpty.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if item, ok := r.take(); ok {
			return item, true
		}
		if r.closed || ctx.Err() != nil {
			return zero, false
		}
		r.notEmpty.Wait()
	}
}

// take removes the oldest item. Caller holds the lock.
func (r *Ring[T]) take() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	item := r.items[r.tail]
	r.items[r.tail] = zero
	r.tail = (r.tail + 1) % len(r.items)
	r.size--
	r.reads.Add(1)
	return item, true
}

// Len returns the current number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Close marks the ring closed and wakes all waiting readers. Buffered items
// remain readable; subsequent Puts are dropped.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	r.closed = true
	r.notEmpty.Broadcast()
	r.mu.Unlock()
}

// Stats returns a snapshot of the ring counters.
func (r *Ring[T]) Stats() Stats {
	r.mu.Lock()
	size := r.size
	r.mu.Unlock()
	return Stats{
		Writes: r.writes.Load(),
		Reads:  r.reads.Load(),
		Drops:  r.drops.Load(),
		Size:   size,
	}
}
