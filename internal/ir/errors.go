package ir

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind separates failures the user can fix from failures of the
// rendering device.
//
//   - KindUserInput: mismatched counts, bad file extension, missing file,
//     malformed pose directive, inconsistent slice ranges, out-of-range option.
//     The current node aborts with empty outputs; the host keeps running.
//   - KindResource: render or backward failure during optimization. The whole
//     run aborts and no partial artifact is returned.
//
// Neither kind is ever retried.
type ErrorKind string

const (
	KindUserInput ErrorKind = "USER_INPUT"
	KindResource  ErrorKind = "RESOURCE"
)

// ErrorCode identifies the specific failure.
type ErrorCode string

const (
	ErrCodeCountMismatch        ErrorCode = "COUNT_MISMATCH"
	ErrCodeUnsupportedExtension ErrorCode = "UNSUPPORTED_EXTENSION"
	ErrCodeFileNotFound         ErrorCode = "FILE_NOT_FOUND"
	ErrCodeMalformedDirective   ErrorCode = "MALFORMED_DIRECTIVE"
	ErrCodeSliceMismatch        ErrorCode = "SLICE_MISMATCH"
	ErrCodeIncompleteCoverage   ErrorCode = "INCOMPLETE_COVERAGE"
	ErrCodeOutOfRange           ErrorCode = "PARAMETER_OUT_OF_RANGE"
	ErrCodePortType             ErrorCode = "PORT_TYPE"
	ErrCodeInvalidInput         ErrorCode = "INVALID_INPUT"

	ErrCodeRenderFailed      ErrorCode = "RENDER_FAILED"
	ErrCodeBackwardFailed    ErrorCode = "BACKWARD_FAILED"
	ErrCodeDeviceUnavailable ErrorCode = "DEVICE_UNAVAILABLE"
	ErrCodeRunState          ErrorCode = "RUN_STATE"
)

// Error is the structured error returned by every domain operation.
// Details carries the offending values so the message alone identifies them.
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Message string
	Details map[string]string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewUserInputError creates a KindUserInput error.
func NewUserInputError(code ErrorCode, message string, details map[string]string) *Error {
	return &Error{Kind: KindUserInput, Code: code, Message: message, Details: details}
}

// NewResourceError creates a KindResource error wrapping cause.
func NewResourceError(code ErrorCode, message string, cause error) *Error {
	return &Error{Kind: KindResource, Code: code, Message: message, Err: cause}
}

// NewCountMismatchError reports two sequences that must have equal length.
func NewCountMismatchError(what string, want, got int) *Error {
	return NewUserInputError(ErrCodeCountMismatch,
		fmt.Sprintf("number of %s does not match", what),
		map[string]string{
			"want": fmt.Sprintf("%d", want),
			"got":  fmt.Sprintf("%d", got),
		})
}

// IsUserInputError reports whether err wraps a KindUserInput error.
func IsUserInputError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindUserInput
	}
	return false
}

// IsResourceError reports whether err wraps a KindResource error.
func IsResourceError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindResource
	}
	return false
}

// CodeOf returns the ErrorCode of err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
