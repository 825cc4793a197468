package tree

import (
	"errors"
	"fmt"

	"github.com/roach88/statetree/internal/route"
)

// DefaultMaxSteps bounds node evaluations per cycle.
const DefaultMaxSteps = 10000

// QuotaEnforcer counts node evaluations within one cycle. A node whose
// rules keep producing children that change their own state would
// otherwise never let the cycle settle.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates an enforcer allowing maxSteps evaluations.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check records one evaluation of node and fails once the limit is passed.
func (q *QuotaEnforcer) Check(node route.NodeID) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{Node: node, Steps: q.current, Limit: q.maxSteps}
	}
	return nil
}

// Current returns the number of evaluations recorded.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError aborts a cycle that evaluated more nodes than allowed.
type StepsExceededError struct {
	Node  route.NodeID
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("cycle exceeded max steps (%d > %d) evaluating node %s", e.Steps, e.Limit, e.Node)
}

// IsStepsExceeded reports whether err is a StepsExceededError.
func IsStepsExceeded(err error) bool {
	var target *StepsExceededError
	return errors.As(err, &target)
}
