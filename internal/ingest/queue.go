// Package ingest runs the ingestion pipeline: one producer fetching and
// parsing source records into a bounded queue, and a pool of consumers
// resolving references and persisting each record.
package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrQueueEmpty is returned by Get when nothing arrived within the timeout.
	ErrQueueEmpty = errors.New("queue empty")
	// ErrEndOfStream is returned by Get once the producer has finished and
	// every enqueued item has been claimed.
	ErrEndOfStream = errors.New("end of stream")
	// ErrQueueClosed is returned by Put after Finish.
	ErrQueueClosed = errors.New("queue closed")
)

// Queue is a bounded FIFO with a single producer and many consumers.
//
// The producer calls Finish exactly once. A consumer observes end of stream
// only when Finish has been called and the outstanding count (incremented on
// Put, decremented on a successful Get) is zero, so no consumer can exit
// while work it could still claim is pending, and every consumer sees the
// end regardless of how many there are.
type Queue[T any] struct {
	items       chan T
	outstanding atomic.Int64
	finished    atomic.Bool

	// mu orders Put against the close in Finish.
	mu   sync.RWMutex
	once sync.Once
}

// NewQueue returns a queue holding at most capacity items.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{items: make(chan T, capacity)}
}

// Put enqueues item, blocking while the queue is full.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.finished.Load() {
		return ErrQueueClosed
	}

	q.outstanding.Add(1)
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		q.outstanding.Add(-1)
		return ctx.Err()
	}
}

// Finish marks the end of the stream. Calls after the first are no-ops.
func (q *Queue[T]) Finish() {
	q.once.Do(func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.finished.Store(true)
		close(q.items)
	})
}

// Get dequeues the next item, waiting at most timeout.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	if q.Drained() {
		return zero, ErrEndOfStream
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item, ok := <-q.items:
		if !ok {
			return zero, ErrEndOfStream
		}
		q.outstanding.Add(-1)
		return item, nil
	case <-timer.C:
		return zero, ErrQueueEmpty
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Drained reports whether the producer has finished and nothing is left to
// claim.
func (q *Queue[T]) Drained() bool {
	return q.finished.Load() && q.outstanding.Load() == 0
}

// Len is the number of items currently buffered.
func (q *Queue[T]) Len() int { return len(q.items) }

// Cap is the queue capacity.
func (q *Queue[T]) Cap() int { return cap(q.items) }

// Outstanding is the number of items enqueued but not yet claimed.
func (q *Queue[T]) Outstanding() int64 { return q.outstanding.Load() }

// Finished reports whether Finish has been called.
func (q *Queue[T]) Finished() bool { return q.finished.Load() }
