package contentbase

import (
	"container/list"
	"context"
	"sync"
)

// WaitQueue is a FIFO hand-off queue. Values enqueued while callers are blocked
// in Dequeue go straight to the oldest waiter; otherwise they are buffered.
//
// Waiters are served strictly in the order their Dequeue calls arrived. A
// waiter whose context is cancelled leaves the queue and never consumes a
// value: if a value raced into it during cancellation, the value is passed on
// to the next waiter (or back to the head of the buffer).
//
// The zero value is not usable; create one with NewWaitQueue.
type WaitQueue[T any] struct {
	mu      sync.Mutex
	buffer  *list.List // of T
	waiters *list.List // of *waiter[T]
}

type waiter[T any] struct {
	ch        chan T // capacity 1, written at most once
	delivered bool
}

// NewWaitQueue creates an empty queue
func NewWaitQueue[T any]() *WaitQueue[T] {
	return &WaitQueue[T]{
		buffer:  list.New(),
		waiters: list.New(),
	}
}

// Enqueue delivers v to the oldest pending waiter, or buffers it when nobody is
// waiting. It never blocks.
func (q *WaitQueue[T]) Enqueue(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.deliverLocked(v) {
		q.buffer.PushBack(v)
	}
}

// Dequeue returns the oldest buffered value, or blocks until one is enqueued or
// ctx is done. An already-cancelled ctx returns immediately without queueing.
func (q *WaitQueue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T

	q.mu.Lock()
	if err := ctx.Err(); err != nil {
		q.mu.Unlock()
		return zero, err
	}
	if front := q.buffer.Front(); front != nil {
		q.buffer.Remove(front)
		q.mu.Unlock()
		return front.Value.(T), nil
	}

	w := &waiter[T]{ch: make(chan T, 1)}
	elem := q.waiters.PushBack(w)
	q.mu.Unlock()

	select {
	case v := <-w.ch:
		return v, nil
	case <-ctx.Done():
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !w.delivered {
		q.waiters.Remove(elem)
		return zero, ctx.Err()
	}

	// Delivery won the race against cancellation. Pass the value on so the
	// cancelled caller does not consume it.
	v := <-w.ch
	if !q.deliverLocked(v) {
		q.buffer.PushFront(v)
	}
	return zero, ctx.Err()
}

// deliverLocked hands v to the oldest waiter. Reports false if nobody waits.
func (q *WaitQueue[T]) deliverLocked(v T) bool {
	front := q.waiters.Front()
	if front == nil {
		return false
	}
	q.waiters.Remove(front)

	w := front.Value.(*waiter[T])
	w.delivered = true
	w.ch <- v
	return true
}

// Count returns the number of buffered, undelivered values
func (q *WaitQueue[T]) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buffer.Len()
}

// Waiting returns the number of callers currently blocked in Dequeue
func (q *WaitQueue[T]) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters.Len()
}
