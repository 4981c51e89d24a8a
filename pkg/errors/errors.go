// Package errors provides structured error handling for shopbulk
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeRateLimited represents API throttling that survived the retry ceiling
	ErrorTypeRateLimited ErrorType = "rate_limited"
	// ErrorTypeTransport represents network/protocol failures
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeTimeout represents an exceeded polling ceiling
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeQuery represents application-level GraphQL errors
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeSubmissionRejected represents a bulk job rejected at submission time
	ErrorTypeSubmissionRejected ErrorType = "submission_rejected"
	// ErrorTypeJobFailed represents a bulk job that reached the FAILED state
	ErrorTypeJobFailed ErrorType = "job_failed"
	// ErrorTypeJobCanceled represents a bulk job that reached the CANCELED state
	ErrorTypeJobCanceled ErrorType = "job_canceled"
	// ErrorTypeSchemaConflict represents a column name canonicalization collision
	ErrorTypeSchemaConflict ErrorType = "schema_conflict"
	// ErrorTypeDecomposition represents a skippable compound-column decomposition failure
	ErrorTypeDecomposition ErrorType = "decomposition"
	// ErrorTypeData represents data processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeRateLimited, ErrorTypeTransport:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error must abort the current entity extraction.
// Decomposition failures narrow the result instead of aborting it.
func IsFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return true
	}
	return e.Type != ErrorTypeDecomposition
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
