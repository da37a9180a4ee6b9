package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an engine failure that is not the node's own error.
//
// Node errors (user input, render failures) are returned to the caller
// untouched; RuntimeError covers the job lifecycle around them.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// JobID identifies the affected job, when there is one.
	JobID string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStopped indicates the engine no longer accepts or runs jobs.
	ErrCodeStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodeJobPanicked indicates a node panicked while executing.
	ErrCodeJobPanicked RuntimeErrorCode = "JOB_PANICKED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("%s: %s (job=%s)", e.Code, e.Message, e.JobID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStoppedError reports whether err means the engine was stopped.
func IsStoppedError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStopped
	}
	return false
}

// IsPanicError reports whether err comes from a recovered node panic.
func IsPanicError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeJobPanicked
	}
	return false
}

func newStoppedError(jobID string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStopped,
		Message: "engine stopped before the job ran",
		JobID:   jobID,
	}
}

func newPanicError(jobID, node string, v any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeJobPanicked,
		Message: fmt.Sprintf("node panicked: %v", v),
		JobID:   jobID,
		Details: map[string]string{"node": node},
	}
}
