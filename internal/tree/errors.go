package tree

import (
	"errors"
	"fmt"

	"github.com/roach88/statetree/internal/route"
)

var (
	// ErrNotStarted is returned by operations that need a started tree.
	ErrNotStarted = errors.New("tree not started")

	// ErrAlreadyStarted is returned by Start and Restore on a live tree.
	ErrAlreadyStarted = errors.New("tree already started")

	// ErrLoopClosed is delivered to mutations submitted after Loop.Close.
	ErrLoopClosed = errors.New("mutation loop closed")
)

// ScopeNotFoundError is returned when a node id does not name a live scope.
type ScopeNotFoundError struct {
	Node route.NodeID
}

func (e *ScopeNotFoundError) Error() string {
	return fmt.Sprintf("no live scope for node %q", e.Node)
}

// UnknownFieldError is returned when a node serves or reads a field it did
// not declare in Routes.
type UnknownFieldError struct {
	Node  route.NodeID
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("node %q has no routed field %q", e.Node, e.Field)
}

// IsScopeNotFound reports whether err is a ScopeNotFoundError.
func IsScopeNotFound(err error) bool {
	var target *ScopeNotFoundError
	return errors.As(err, &target)
}

// IsUnknownField reports whether err is an UnknownFieldError.
func IsUnknownField(err error) bool {
	var target *UnknownFieldError
	return errors.As(err, &target)
}
