package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a podscribe error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrInvalidRecord  ErrorCode = "INVALID_RECORD"  // 422
	ErrCancelled      ErrorCode = "CANCELLED"       // 499
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrDecode         ErrorCode = "DECODE_ERROR"    // 500, absorbed as a cache miss
	ErrComputeFailed  ErrorCode = "COMPUTE_FAILED"  // 502
	ErrCachePersist   ErrorCode = "CACHE_PERSIST"   // 503, never blocks a result
)

// Error represents a structured error with code, status, and details.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when no cached transcript exists.
func NewNotFound(identifier string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("transcript not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for missing import files.
func NewFileNotFound(path string) *Error {
	return &Error{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewInvalidRecord creates a 422 error when a transcript record breaks an invariant.
func NewInvalidRecord(field, msg string) *Error {
	return &Error{
		Code:    ErrInvalidRecord,
		Status:  422,
		Message: fmt.Sprintf("%s: %s", field, msg),
		Details: map[string]any{"field": field},
	}
}

// NewCancelled creates a 499 error when an operation is cancelled via context.
func NewCancelled(operation string) *Error {
	return &Error{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewDecode creates an error for a stored blob that cannot be read back.
// Callers treat it as a cache miss.
func NewDecode(field string, err error) *Error {
	msg := fmt.Sprintf("malformed %s", field)
	if err != nil {
		msg = fmt.Sprintf("malformed %s: %v", field, err)
	}
	return &Error{
		Code:    ErrDecode,
		Status:  500,
		Message: msg,
		Details: map[string]any{"field": field},
		Err:     err,
	}
}

// NewCachePersist creates an error for a failed cache write.
// The freshly computed result is still returned to the caller.
func NewCachePersist(key string, err error) *Error {
	msg := "failed to persist transcript"
	if err != nil {
		msg = fmt.Sprintf("failed to persist transcript: %v", err)
	}
	return &Error{
		Code:    ErrCachePersist,
		Status:  503,
		Message: msg,
		Details: map[string]any{"key": key},
		Err:     err,
	}
}

// NewComputeFailed wraps a failure of the external download/transcription step.
func NewComputeFailed(stage string, err error) *Error {
	msg := fmt.Sprintf("%s failed", stage)
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", stage, err)
	}
	return &Error{
		Code:    ErrComputeFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"stage": stage},
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *Error {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// StatusOf returns the HTTP-style status for err, 500 for unknown errors.
func StatusOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return 500
}
