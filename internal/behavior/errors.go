package behavior

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError is returned when a bounded wait gives up. The behaviors it
// waited on are unaffected and keep running.
type TimeoutError struct {
	Op      string
	After   time.Duration
	Pending int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s with %d behaviors pending", e.Op, e.After, e.Pending)
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

var errTimedOut = errors.New("timed out")

// race runs op against a timer. When the timer wins, op's context is
// cancelled and its eventual result is dropped. op must not mutate shared
// state after its context is cancelled. A non-positive timeout waits for
// op alone.
func race(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errTimedOut
	}
}
