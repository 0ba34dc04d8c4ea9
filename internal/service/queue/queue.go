// Package queue provides an unbounded FIFO task queue with completion tracking.
package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded, concurrency-safe FIFO. Every item taken with Get
// must be acknowledged with Done; Join blocks until all items put so far
// have been acknowledged.
type Queue[T any] struct {
	mu         sync.Mutex
	items      []T
	unfinished int
	ready      chan struct{}
	drained    chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	drained := make(chan struct{})
	close(drained)
	return &Queue[T]{
		ready:   make(chan struct{}, 1),
		drained: drained,
	}
}

// Put appends item. It never blocks.
func (q *Queue[T]) Put(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.unfinished++
	if q.unfinished == 1 {
		q.drained = make(chan struct{})
	}
	q.mu.Unlock()
	q.signal()
}

// Get removes and returns the oldest item, blocking until one is available
// or ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Done acknowledges one item previously returned by Get.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished == 0 {
		panic("queue: Done called more times than Put")
	}
	q.unfinished--
	if q.unfinished == 0 {
		close(q.drained)
	}
}

// Join blocks until every item put so far has been acknowledged, or ctx is done.
func (q *Queue[T]) Join(ctx context.Context) error {
	q.mu.Lock()
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of items waiting to be taken.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
