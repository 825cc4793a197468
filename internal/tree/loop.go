package tree

import (
	"context"

	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
)

// Loop serializes mutations from concurrent producers onto the goroutine
// running Run, one update cycle per mutation, in submission order.
//
// Thread-safety model:
//   - Submit: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Loop struct {
	tree  *Tree
	queue *mutationQueue
}

// NewLoop creates a loop feeding t.
func NewLoop(t *Tree) *Loop {
	return &Loop{tree: t, queue: newMutationQueue()}
}

// Submit queues fn against node id. The returned channel receives the
// cycle's result once Run has processed it, or ErrLoopClosed if the loop
// no longer accepts mutations.
func (l *Loop) Submit(id route.NodeID, fn func(router.Node) error) <-chan error {
	done := make(chan error, 1)
	if !l.queue.Enqueue(mutation{node: id, apply: fn, done: done}) {
		done <- ErrLoopClosed
	}
	return done
}

// Run processes mutations until ctx is cancelled or Close is called and
// the queue is drained. A failed mutation is logged, reported to its
// submitter, and does not stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.tree.logger.Debug("mutation loop starting")

	for {
		if m, ok := l.queue.TryDequeue(); ok {
			err := l.tree.Mutate(ctx, m.node, m.apply)
			if err != nil {
				l.tree.logger.Warn("mutation failed", "node_id", m.node, "error", err)
			}
			m.done <- err
			continue
		}

		select {
		case <-ctx.Done():
			l.queue.Close()
			l.drain(ctx.Err())
			return ctx.Err()
		case _, open := <-l.queue.Wait():
			if !open && l.queue.Len() == 0 {
				l.tree.logger.Debug("mutation loop stopping: queue closed")
				return nil
			}
		}
	}
}

// drain fails every mutation still queued.
func (l *Loop) drain(err error) {
	for {
		m, ok := l.queue.TryDequeue()
		if !ok {
			return
		}
		m.done <- err
	}
}

// Close stops accepting mutations. Run returns once the queue drains.
func (l *Loop) Close() {
	l.queue.Close()
}
