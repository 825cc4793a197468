package behavior

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is a behavior's lifecycle position. It only moves forward.
type State int32

const (
	StateCreated State = iota + 1
	StateStarted
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

// Resolution is the handle to one behavior run and its eventual result.
type Resolution struct {
	id      ID
	state   atomic.Int32
	tracked atomic.Bool

	started   chan struct{}
	done      chan struct{}
	startOnce sync.Once
	doneOnce  sync.Once
	result    Result
}

// NewResolution returns a resolution in StateCreated.
func NewResolution(id ID) *Resolution {
	r := &Resolution{
		id:      id,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.state.Store(int32(StateCreated))
	return r
}

func (r *Resolution) ID() ID {
	return r.id
}

func (r *Resolution) State() State {
	return State(r.state.Load())
}

// Started is closed once the behavior starts, or finishes without starting.
func (r *Resolution) Started() <-chan struct{} {
	return r.started
}

// Done is closed once the result is available.
func (r *Resolution) Done() <-chan struct{} {
	return r.done
}

// markStarted moves Created to Started. It reports false if the behavior
// already started or finished.
func (r *Resolution) markStarted() bool {
	if !r.state.CompareAndSwap(int32(StateCreated), int32(StateStarted)) {
		return false
	}
	r.startOnce.Do(func() { close(r.started) })
	return true
}

// Resolve records the terminal result. Only the first call has an effect;
// it reports whether this call won.
func (r *Resolution) Resolve(res Result) bool {
	won := false
	r.doneOnce.Do(func() {
		won = true
		if res.ID == "" {
			res.ID = r.id
		}
		r.result = res
		r.state.Store(int32(StateFinished))
		r.startOnce.Do(func() { close(r.started) })
		close(r.done)
	})
	return won
}

// Result returns the result if it is available.
func (r *Resolution) Result() (Result, bool) {
	select {
	case <-r.done:
		return r.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the result is available or ctx is done.
func (r *Resolution) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
