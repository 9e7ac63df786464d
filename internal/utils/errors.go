// Package utils provides the logging capability and structured error
// taxonomy shared by the sync pipeline.
package utils

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns string representation of error severity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ErrorCode represents predefined error codes for categorization
type ErrorCode string

const (
	// Source page
	ErrCodeNavigationFailed ErrorCode = "NAVIGATION_FAILED"
	ErrCodeBrowserFailed    ErrorCode = "BROWSER_FAILED"
	ErrCodeExtractionFailed ErrorCode = "EXTRACTION_FAILED"

	// Storage backend
	ErrCodeAuthFailed    ErrorCode = "AUTH_FAILED"
	ErrCodeStorageFailed ErrorCode = "STORAGE_FAILED"

	// Configuration
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StructuredError provides rich error information for better debugging and handling
type StructuredError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Severity   ErrorSeverity          `json:"severity"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	Timestamp  time.Time              `json:"timestamp"`
	StackTrace []string               `json:"stack_trace,omitempty"`
	Retryable  bool                   `json:"retryable"`
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error unwrapping
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target error code
func (e *StructuredError) Is(target error) bool {
	if se, ok := target.(*StructuredError); ok {
		return e.Code == se.Code
	}
	return false
}

// ErrorBuilder provides a fluent interface for creating structured errors
type ErrorBuilder struct {
	error *StructuredError
}

// StackTraceDepth is the number of frames captured by NewError.
var StackTraceDepth = 15

// NewError creates a new error builder
func NewError(code ErrorCode, message string) *ErrorBuilder {
	return &ErrorBuilder{
		error: &StructuredError{
			Code:       code,
			Message:    message,
			Severity:   SeverityError,
			Timestamp:  time.Now(),
			StackTrace: captureStackTrace(StackTraceDepth),
		},
	}
}

// WithSeverity sets the error severity
func (eb *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	eb.error.Severity = severity
	return eb
}

// WithCause sets the underlying cause
func (eb *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	eb.error.Cause = cause
	return eb
}

// WithContext adds contextual information
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	if eb.error.Context == nil {
		eb.error.Context = make(map[string]interface{})
	}
	eb.error.Context[key] = value
	return eb
}

// WithRetryable marks the error as retryable
func (eb *ErrorBuilder) WithRetryable(retryable bool) *ErrorBuilder {
	eb.error.Retryable = retryable
	return eb
}

// Build returns the constructed error
func (eb *ErrorBuilder) Build() *StructuredError {
	return eb.error
}

// Wrap is shorthand for NewError(code, message).WithCause(cause).Build().
// A nil cause yields nil so call sites can wrap unconditionally.
func Wrap(code ErrorCode, message string, cause error) error {
	if cause == nil {
		return nil
	}
	return NewError(code, message).WithCause(cause).Build()
}

// CodeOf returns the code of the first StructuredError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// SeverityOf returns the severity of the first StructuredError in err's
// chain, or SeverityError when there is none.
func SeverityOf(err error) ErrorSeverity {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Severity
	}
	return SeverityError
}

// HasCode reports whether err's chain carries a StructuredError with code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &StructuredError{Code: code})
}

func captureStackTrace(depth int) []string {
	if depth <= 0 {
		return nil
	}
	pcs := make([]uintptr, depth)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	trace := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		trace = append(trace, frame.Function+" "+frame.File+":"+strconv.Itoa(frame.Line))
		if !more {
			break
		}
	}
	return trace
}
