package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/shared"
)

var (
	ErrQueueFull   = errors.New("work queue is full")
	ErrQueueClosed = errors.New("work queue is closed")
)

// WorkQueue is a bounded queue of chunks shared by competing workers.
//
// Every chunk put on the queue is delivered to exactly one caller of [WorkQueue.Get].
type WorkQueue struct {
	mu     sync.Mutex
	items  chan models.Chunk
	closed bool
	puts   int
}

// NewWorkQueue creates a queue that holds up to capacity chunks.
func NewWorkQueue(capacity int) (*WorkQueue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: queue capacity must be positive, got %d", shared.ErrInvalidConfig, capacity)
	}
	return &WorkQueue{items: make(chan models.Chunk, capacity)}, nil
}

// Put enqueues a chunk without blocking.
func (q *WorkQueue) Put(c models.Chunk) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- c:
		q.puts++
		return nil
	default:
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, cap(q.items))
	}
}

// Close marks the producer as done. Consumers drain what is left and then get nothing.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.items)
	}
}

// Get claims the next chunk, waiting at most timeout.
//
// It returns false when the timeout expires, when the queue is closed and drained, or when ctx
// is done.
func (q *WorkQueue) Get(ctx context.Context, timeout time.Duration) (models.Chunk, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c, ok := <-q.items:
		return c, ok
	case <-timer.C:
		return models.Chunk{}, false
	case <-ctx.Done():
		return models.Chunk{}, false
	}
}

// Len returns the number of chunks waiting to be claimed.
func (q *WorkQueue) Len() int {
	return len(q.items)
}

// Enqueued returns the number of chunks ever accepted by Put.
func (q *WorkQueue) Enqueued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.puts
}
