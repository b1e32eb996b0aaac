package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrInputNotFound: the referenced input artifact is absent at execution time.
	ErrInputNotFound = errors.New("input not found")
	// ErrInvalidParameter: out-of-range scale or unknown job kind.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrNotFound is returned by task stores for unknown ids.
	ErrNotFound = errors.New("not found")
)

// ResourceInitializationError means both the accelerated and the fallback
// backend failed to load a model.
type ResourceInitializationError struct {
	Resource    string
	Accelerated error
	Fallback    error
}

func (e *ResourceInitializationError) Error() string {
	return fmt.Sprintf("resource %s: initialization failed (accelerated: %v; fallback: %v)",
		e.Resource, e.Accelerated, e.Fallback)
}

func (e *ResourceInitializationError) Unwrap() []error {
	var errs []error
	if e.Accelerated != nil {
		errs = append(errs, e.Accelerated)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// StageExecutionError wraps a failure raised by a transformation capability.
type StageExecutionError struct {
	Stage string
	Cause error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Cause)
}

func (e *StageExecutionError) Unwrap() error { return e.Cause }

// FailureMessage renders err as the human-readable message stored on a failed task.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var stageErr *StageExecutionError
	if errors.As(err, &stageErr) && stageErr.Cause != nil {
		return stageErr.Stage + " failed: " + stageErr.Cause.Error()
	}
	return err.Error()
}
