package behavior

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ID identifies a behavior. Interceptors are keyed by it.
type ID string

// Func is the body of a behavior.
type Func func(ctx context.Context, input any) (any, error)

// Behavior is a named asynchronous unit of work.
type Behavior struct {
	ID  ID
	Run Func
}

// New returns a behavior with the given id and body.
func New(id ID, run Func) Behavior {
	return Behavior{ID: id, Run: run}
}

// Result is the terminal outcome of one behavior run.
type Result struct {
	ID        ID
	Value     any
	Err       error
	Cancelled bool
}

// ErrUnresolved is the error of a behavior that reported finished without
// resolving its result.
var ErrUnresolved = errors.New("behavior finished without a result")

// Tracking is the retention policy for finished behaviors.
type Tracking int

const (
	// TrackUntilComplete removes a behavior from the tracked set when it
	// finishes.
	TrackUntilComplete Tracking = iota + 1
	// TrackIndefinitely keeps finished behaviors for the tracker's lifetime.
	TrackIndefinitely
)

func (t Tracking) String() string {
	switch t {
	case TrackUntilComplete:
		return "until_complete"
	case TrackIndefinitely:
		return "indefinitely"
	}
	return fmt.Sprintf("tracking(%d)", int(t))
}

// ParseTracking parses "until_complete" or "indefinitely".
func ParseTracking(s string) (Tracking, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "until_complete", "untilcomplete":
		return TrackUntilComplete, nil
	case "indefinitely":
		return TrackIndefinitely, nil
	}
	return 0, fmt.Errorf("unknown tracking policy %q", s)
}
