package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrQueueFull is returned by Submit when the queue cannot accept the
// request before the caller's context expires.
var ErrQueueFull = errors.New("processing queue full")

// DefaultQueueCapacity bounds the request queue. Producers see backpressure
// as a blocking Submit rather than unbounded growth.
const DefaultQueueCapacity = 256

// Queue is the bounded FIFO between producers (gateway, stream bridge,
// feed) and the single pipeline worker.
type Queue struct {
	ch chan ProcessingRequest
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan ProcessingRequest, capacity)}
}

// Submit enqueues a request, blocking until there is room or ctx expires.
func (q *Queue) Submit(ctx context.Context, req ProcessingRequest) error {
	select {
	case q.ch <- req:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err())
	}
}

// Requests exposes the consumer side of the queue. The pipeline worker is
// its only reader.
func (q *Queue) Requests() <-chan ProcessingRequest {
	return q.ch
}

// Len reports the number of queued requests, for health reporting.
func (q *Queue) Len() int {
	return len(q.ch)
}
