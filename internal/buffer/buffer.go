package buffer

import (
	"sync"
)

// Queue is a thread-safe ring buffer that grows on demand up to a ceiling.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int
	tail   int
	count  int
	max    int
	closed bool

	pushed  int64
	popped  int64
	evicted int64
	resizes int
}

// Stats contains queue statistics.
type Stats struct {
	Len      int
	Capacity int
	Max      int
	Pushed   int64
	Popped   int64
	Evicted  int64
	Resizes  int
}

// New creates a queue with the given initial capacity. maxCapacity bounds
// growth; zero or anything below initial means the queue never grows.
func New[T any](initial, maxCapacity int) *Queue[T] {
	if initial < 1 {
		initial = 1
	}
	if maxCapacity < initial {
		maxCapacity = initial
	}
	q := &Queue[T]{
		buf: make([]T, initial),
		max: maxCapacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. When the queue is at its ceiling the oldest item is
// discarded. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (len(q.buf) * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold && len(q.buf) < q.max {
		q.grow()
	}

	if q.count == len(q.buf) {
		q.popLocked()
		q.popped--
		q.evicted++
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.pushed++

	q.cond.Signal()
	return true
}

// Pop blocks until an item is available or the queue is closed and empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Drain removes up to limit items in FIFO order. limit <= 0 drains everything.
func (q *Queue[T]) Drain(limit int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]T, n)
	for i := range out {
		out[i] = q.popLocked()
	}
	return out
}

// Close stops accepting items and wakes blocked consumers. Items already
// queued remain available.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns a snapshot of queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:      q.count,
		Capacity: len(q.buf),
		Max:      q.max,
		Pushed:   q.pushed,
		Popped:   q.popped,
		Evicted:  q.evicted,
		Resizes:  q.resizes,
	}
}

// popLocked removes the head item. Caller holds mu and guarantees count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.popped++
	return item
}

// grow doubles capacity, clamped to max. Caller holds mu.
func (q *Queue[T]) grow() {
	size := len(q.buf) * 2
	if size > q.max {
		size = q.max
	}
	next := make([]T, size)

	if q.count > 0 {
		if q.head < q.tail {
			copy(next, q.buf[q.head:q.tail])
		} else {
			n := copy(next, q.buf[q.head:])
			copy(next[n:], q.buf[:q.tail])
		}
	}

	q.buf = next
	q.head = 0
	q.tail = q.count % size
	q.resizes++
}
