package testutil

import (
	"context"
	"sync"

	"github.com/roach88/statetree/internal/behavior"
)

// Gate is a behavior body that blocks until Open is called or its context
// is cancelled. Tests use it to hold a behavior in the started state.
type Gate struct {
	once    sync.Once
	release chan struct{}
	value   any
}

// NewGate returns a closed gate whose behaviors resolve to value.
func NewGate(value any) *Gate {
	return &Gate{release: make(chan struct{}), value: value}
}

// Open releases every behavior waiting on the gate. Safe to call twice.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.release) })
}

// Behavior returns a behavior named id that waits on the gate.
func (g *Gate) Behavior(id behavior.ID) behavior.Behavior {
	return behavior.New(id, func(ctx context.Context, _ any) (any, error) {
		select {
		case <-g.release:
			return g.value, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}
