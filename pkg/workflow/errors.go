package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTemplateInvalid   = errors.New("template invalid")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrInstanceNotFound  = errors.New("instance not found")
	ErrInstanceNotActive = errors.New("instance not active")
	ErrStepNotFound      = errors.New("step not found")
	ErrDecisionRequired  = errors.New("decision required")
	ErrNoMatchingRoute   = errors.New("no matching route")
	ErrCycleDetected     = errors.New("cycle detected")
	// ErrJoinNotSatisfied is informational; a waiting step is not a failure.
	ErrJoinNotSatisfied = errors.New("join not satisfied")
	// ErrInstanceNotCompleted is returned when snapshotting an instance that has not reached an end node.
	ErrInstanceNotCompleted = errors.New("instance not completed")
)

// Error adds the failing operation and position to an engine error.
type Error struct {
	Op         string
	InstanceID string
	NodeID     string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Op)

	if e.InstanceID != "" {
		fmt.Fprintf(&b, " instance %s", e.InstanceID)
	}

	if e.NodeID != "" {
		fmt.Fprintf(&b, " node %s", e.NodeID)
	}

	b.WriteString(": ")
	b.WriteString(e.Err.Error())

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, instanceID, nodeID string, err error) *Error {
	return &Error{Op: op, InstanceID: instanceID, NodeID: nodeID, Err: err}
}

// ValidationError lists every structural problem found in a template.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "template invalid: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrTemplateInvalid
}
