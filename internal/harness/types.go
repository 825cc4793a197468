package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/statetree/internal/behavior"
	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
	"github.com/roach88/statetree/internal/store"
	"github.com/roach88/statetree/internal/tree"
)

// Result is the outcome of a scenario execution.
type Result struct {
	Scenario string `json:"scenario"`

	// Pass is true if every expectation held.
	Pass bool `json:"pass"`

	// Start is the initial cycle, index 0.
	Start StepResult `json:"start"`

	// Steps are the executed steps, indexed from 1.
	Steps []StepResult `json:"steps"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the tree after the last step, nil if the tree never
	// started.
	Final *route.Snapshot `json:"-"`
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Steps:    []StepResult{},
		Errors:   []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// StepResult is what one step did to the tree.
type StepResult struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
	Op    string `json:"op"`

	// Counts are the node events the step committed. A failed step
	// commits nothing.
	Counts tree.Counts `json:"counts"`

	// Nodes is the live node count after the step.
	Nodes int `json:"nodes"`

	// Error is the kind of the step's error, empty on success.
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	err error
}

// Err returns the step's error.
func (s StepResult) Err() error {
	return s.err
}

func (s StepResult) label() string {
	if s.Name != "" {
		return fmt.Sprintf("step %d (%s)", s.Index, s.Name)
	}
	if s.Index == 0 {
		return "start"
	}
	return fmt.Sprintf("step %d (%s)", s.Index, s.Op)
}

func (s *StepResult) fail(err error) {
	s.err = err
	s.Error = ErrorKind(err)
	s.Message = err.Error()
}

// PathError is returned when a node path does not name a live node.
type PathError struct {
	Path    string
	Segment string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q: no live node at %q", e.Path, e.Segment)
}

// ErrorKind classifies a step error for expect_error matching.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if kind := router.ErrorKind(err); kind != "" {
		return kind
	}
	var pathErr *PathError
	switch {
	case tree.IsStepsExceeded(err):
		return "steps_exceeded"
	case tree.IsUnknownField(err):
		return "unknown_field"
	case tree.IsScopeNotFound(err):
		return "scope_not_found"
	case behavior.IsTimeout(err):
		return "timeout"
	case errors.As(err, &pathErr):
		return "path_not_found"
	case errors.Is(err, store.ErrSnapshotNotFound):
		return "snapshot_not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}
