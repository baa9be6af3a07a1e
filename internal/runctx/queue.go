package runctx

import (
	"context"
	"sync"

	"place-client/internal/logging"
)

// Queue is an unbounded FIFO between producers that must never block (socket
// listeners) and one consumer loop. It warns once each time the backlog
// crosses warnAt and re-arms after it has drained.
type Queue[T any] struct {
	name   string
	logger *logging.Logger
	warnAt int

	mu     sync.Mutex
	items  []T
	closed bool
	warned bool
	ready  chan struct{}
}

func NewQueue[T any](name string, logger *logging.Logger, warnAt int) *Queue[T] {
	if logger == nil {
		panic("runctx.NewQueue: logger must not be nil")
	}
	return &Queue[T]{
		name:   name,
		logger: logger,
		warnAt: warnAt,
		ready:  make(chan struct{}, 1),
	}
}

// Push appends value and returns immediately. It reports false once the
// queue is closed.
func (q *Queue[T]) Push(value T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, value)
	pending := len(q.items)
	warn := q.warnAt > 0 && pending >= q.warnAt && !q.warned
	if warn {
		q.warned = true
	}
	q.mu.Unlock()

	if warn {
		q.logger.Warn(q.name+" backlog growing", logging.Field("pending", pending))
	}
	q.wake()
	return true
}

// Recv returns the oldest value. It waits until one is pushed, the queue is
// closed and drained, or ctx ends.
func (q *Queue[T]) Recv(ctx context.Context) (T, bool) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			value := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
				q.warned = false
			}
			q.mu.Unlock()
			return value, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			q.logger.Debug("stopping " + q.name + ": queue closed")
			return zero, false
		}

		select {
		case <-ctx.Done():
			q.logger.Debug("stopping "+q.name+": context canceled", logging.Field("error", context.Cause(ctx)))
			return zero, false
		case <-q.ready:
		}
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes. Values already queued are still delivered.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *Queue[T]) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
