// Package opserr provides a shared structured error type used across the
// ingestion pipeline for in-process error wrapping. It is distinct from the
// persisted ingestion_error audit trail (see package ingesterr), which
// records errors as rows, not Go values.
package opserr

import "fmt"

// OperationError describes a failed operation with enough structure for
// logs and callers to act on without parsing a message string.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	switch {
	case e.Component != "" && e.Resource != "":
		return fmt.Sprintf("failed to %s, component: %s, resource: %s, cause: %v", e.Operation, e.Component, e.Resource, e.Cause)
	case e.Component != "":
		return fmt.Sprintf("failed to %s, component: %s", e.Operation, e.Component)
	case e.Cause != nil:
		return fmt.Sprintf("failed to %s, cause: %v", e.Operation, e.Cause)
	default:
		return fmt.Sprintf("failed to %s", e.Operation)
	}
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal OperationError wrapping cause under action.
func FailedTo(action string, cause error) error {
	return &OperationError{Operation: action, Cause: cause}
}

// FailedToWithDetails builds a fully-populated OperationError.
func FailedToWithDetails(action, component, resource string, cause error) error {
	return &OperationError{
		Operation: action,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

// Wrapf wraps err with a formatted prefix, returning nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", err)
}
