package tree

import (
	"sync"

	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
)

// mutation is one queued call to Tree.Mutate.
type mutation struct {
	node  route.NodeID
	apply func(router.Node) error
	done  chan error
}

// mutationQueue is an unbounded FIFO of mutations. Producers on any
// goroutine enqueue; one consumer drains it with TryDequeue and Wait.
//
// Wait returns a signal channel (buffered, size 1) so the consumer can
// select on it together with ctx.Done().
type mutationQueue struct {
	mu      sync.Mutex
	pending []mutation
	closed  bool
	signal  chan struct{}
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{
		pending: make([]mutation, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends m. Returns false if the queue is closed.
func (q *mutationQueue) Enqueue(m mutation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, m)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front mutation without blocking.
func (q *mutationQueue) TryDequeue() (mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return mutation{}, false
	}
	m := q.pending[0]
	q.pending[0] = mutation{}
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}
	return m, true
}

// Wait signals when mutations may be available. The channel is closed
// when the queue closes.
func (q *mutationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending mutations.
func (q *mutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops further enqueues and wakes the consumer.
func (q *mutationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
