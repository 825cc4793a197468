package router

import (
	"errors"
	"fmt"

	"github.com/roach88/statetree/internal/route"
)

// UnboundRouterError is returned when a router is used before its field was
// registered on a connected node. It is a programmer error.
type UnboundRouterError struct {
	Field route.FieldID
}

func (e *UnboundRouterError) Error() string {
	return fmt.Sprintf("router for %s used before it was bound to a routing context", e.Field)
}

// ShapeMismatchError is returned when a persisted record does not have the
// router's static shape.
type ShapeMismatchError struct {
	Field route.FieldID
	Want  route.Shape
	Got   route.Shape
	// Tag is set when the shape matched but the record's tag is out of range.
	Tag int
}

func (e *ShapeMismatchError) Error() string {
	if e.Want == e.Got {
		return fmt.Sprintf("route %s: %s record has tag %d out of range", e.Field, e.Got, e.Tag)
	}
	return fmt.Sprintf("route %s: router is %s but record is %s", e.Field, e.Want, e.Got)
}

// RecordNotFoundError is returned by Hydrate when the route record of a
// field, or a node record it references, cannot be located.
type RecordNotFoundError struct {
	Field route.FieldID
	// Node is empty when the route record itself is missing.
	Node route.NodeID
}

func (e *RecordNotFoundError) Error() string {
	if e.Node.Valid() {
		return fmt.Sprintf("route %s: node record %q not found", e.Field, e.Node)
	}
	return fmt.Sprintf("route %s: route record not found", e.Field)
}

// DuplicateKeyError is returned when a list topology repeats an identity
// key. Nothing is reconciled when it occurs.
type DuplicateKeyError struct {
	Field  route.FieldID
	Key    string
	First  int
	Second int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("route %s: duplicate key %q at positions %d and %d", e.Field, e.Key, e.First, e.Second)
}

// InvalidTopologyError is returned when a desired topology cannot be held
// by the router's shape.
type InvalidTopologyError struct {
	Field  route.FieldID
	Shape  route.Shape
	Reason string
}

func (e *InvalidTopologyError) Error() string {
	return fmt.Sprintf("route %s: invalid %s topology: %s", e.Field, e.Shape, e.Reason)
}

// IsUnbound reports whether err is an UnboundRouterError.
func IsUnbound(err error) bool {
	var target *UnboundRouterError
	return errors.As(err, &target)
}

// IsShapeMismatch reports whether err is a ShapeMismatchError.
func IsShapeMismatch(err error) bool {
	var target *ShapeMismatchError
	return errors.As(err, &target)
}

// IsRecordNotFound reports whether err is a RecordNotFoundError.
func IsRecordNotFound(err error) bool {
	var target *RecordNotFoundError
	return errors.As(err, &target)
}

// IsDuplicateKey reports whether err is a DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var target *DuplicateKeyError
	return errors.As(err, &target)
}

// IsInvalidTopology reports whether err is an InvalidTopologyError.
func IsInvalidTopology(err error) bool {
	var target *InvalidTopologyError
	return errors.As(err, &target)
}

// ErrorKind classifies router errors for reporting. It returns "" for
// errors this package does not define.
func ErrorKind(err error) string {
	switch {
	case IsUnbound(err):
		return "unbound"
	case IsShapeMismatch(err):
		return "shape_mismatch"
	case IsRecordNotFound(err):
		return "record_not_found"
	case IsDuplicateKey(err):
		return "duplicate_key"
	case IsInvalidTopology(err):
		return "invalid_topology"
	}
	return ""
}
