package scheduler

import (
	"sync"

	"github.com/eapache/queue"
)

// BasicQueue is the multi-producer queue behind every worker queue class.
// It wraps a ring-backed FIFO with a mutex, an active flag, and a condition
// variable for parked consumers.
type BasicQueue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *queue.Queue
	active bool
}

// NewBasicQueue creates an active empty queue.
func NewBasicQueue[T any]() *BasicQueue[T] {
	q := &BasicQueue[T]{items: queue.New(), active: true}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends t. Pushing to a deactivated queue is a no-op.
func (q *BasicQueue[T]) Push(t T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.active {
		return
	}
	q.items.Add(t)
	q.cond.Signal()
}

// TryPop removes and returns the head without blocking.
func (q *BasicQueue[T]) TryPop() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Length() == 0 {
		return zero, false
	}
	v := q.items.Remove()
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Size returns the current number of queued tasks.
func (q *BasicQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Empty reports whether the queue holds no tasks.
func (q *BasicQueue[T]) Empty() bool {
	return q.Size() == 0
}

// Active reports whether the queue accepts pushes.
func (q *BasicQueue[T]) Active() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Deactivate stops the queue and wakes every parked consumer.
func (q *BasicQueue[T]) Deactivate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active = false
	q.cond.Broadcast()
}

// Reconstruct replaces the underlying storage, dropping queued tasks.
func (q *BasicQueue[T]) Reconstruct() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = queue.New()
}
