// Package queue provides the small concurrency-safe FIFO the playback path
// buffers pending audio in. Flush exists for barge-in: everything queued but
// not yet sent gets dropped at once.
package queue

import "sync"

// Queue is a generic FIFO safe for concurrent producers and consumers.
// A capacity of 0 means unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
}

// New creates a queue with the given capacity (0 for unbounded).
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{capacity: capacity}
}

// Enqueue adds an element to the back. It returns false when the queue is at
// capacity and the element was dropped.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, item)
	return true
}

// Dequeue removes and returns the front element. The boolean is false when
// the queue was empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Peek returns the front element without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Flush drops all queued elements and returns how many were dropped.
func (q *Queue[T]) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}
