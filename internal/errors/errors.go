// Package errors provides centralized error definitions and error handling utilities
// for trialrun. It defines sentinel errors, a run-scoped error type, semantic error
// types, and classification helpers used when deciding what to show the user.
//
// # Error Types
//
// Domain errors:
//   - RunError: a trial run ended unsuccessfully (validation, execution, or cancellation)
//
// Semantic errors:
//   - NotFoundError: a query or data source could not be found
//   - ValidationError: invalid input or configuration
//
// # Usage
//
//	err := errors.NewRunError("Target data source not available.", errors.ErrDataSourceUnavailable).
//	    WithEntity("42").WithRun(job.ID())
//
//	if errors.Is(err, errors.ErrRunCanceled) { ... }
//	msg := errors.UserMessage(err)
//
// Stale completions are not errors and never produce values from this package.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Run-related sentinel errors
var (
	// ErrRunFailed indicates that a trial run finished with a failure.
	ErrRunFailed = New("trial run failed")
	// ErrRunCanceled indicates that a trial run was canceled before it finished.
	ErrRunCanceled = New("trial run canceled")
	// ErrDataSourceUnavailable indicates the query has no usable data source.
	ErrDataSourceUnavailable = New("data source unavailable")
	// ErrDataSourcePaused indicates the query's data source is paused.
	ErrDataSourcePaused = New("data source paused")
	// ErrMissingParameters indicates one or more query parameters have no value.
	ErrMissingParameters = New("missing parameter values")
	// ErrCoordinatorClosed indicates the coordinator was torn down.
	ErrCoordinatorClosed = New("coordinator closed")
)

// Catalog-related sentinel errors
var (
	// ErrQueryNotFound indicates that a query could not be found.
	ErrQueryNotFound = New("query not found")
	// ErrDataSourceNotFound indicates that a data source could not be found.
	ErrDataSourceNotFound = New("data source not found")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// TrialError is the base interface for all trialrun errors.
type TrialError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	IsRetryable() bool
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// -----------------------------------------------------------------------------
// RunError
// -----------------------------------------------------------------------------

// RunError describes why a trial run did not succeed. The message is the
// human-readable reason shown in notifications; the cause is usually one of
// the run sentinels above.
//
// Example:
//
//	err := errors.NewRunError("Missing parameter value for: region", errors.ErrMissingParameters)
//	err = err.WithEntity("7").WithRun("5f0c...")
//	fmt.Println(err) // "run error [entity=7, run=5f0c...]: Missing parameter value for: region: missing parameter values"
type RunError struct {
	baseError
	EntityID string
	RunID    string
}

// NewRunError creates a new RunError.
func NewRunError(message string, cause error) *RunError {
	return &RunError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithEntity adds the owning entity ID to the error context.
func (e *RunError) WithEntity(id string) *RunError {
	e.EntityID = id
	return e
}

// WithRun adds the run ID to the error context.
func (e *RunError) WithRun(id string) *RunError {
	e.RunID = id
	return e
}

// WithSeverity sets the error severity.
func (e *RunError) WithSeverity(s Severity) *RunError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *RunError) WithRetryable(r bool) *RunError {
	e.retryable = r
	return e
}

// Message returns the reason without context or cause.
func (e *RunError) Message() string {
	return e.message
}

// Error returns the formatted error message.
func (e *RunError) Error() string {
	var parts []string
	if e.EntityID != "" {
		parts = append(parts, fmt.Sprintf("entity=%s", e.EntityID))
	}
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", e.RunID))
	}

	prefix := "run error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("run error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *RunError) Is(target error) bool {
	if _, ok := target.(*RunError); ok {
		return true
	}
	if target == ErrRunFailed {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a missing resource.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s not found", resourceType),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	base := fmt.Sprintf("%s %q not found", e.ResourceType, e.ResourceID)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("query must reference a data source").WithField("queries[0].data_source")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition.
// Paused data sources and canceled runs are worth retrying; everything else
// needs the user to change something first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var trialErr TrialError
	if As(err, &trialErr) && trialErr.IsRetryable() {
		return true
	}

	return Is(err, ErrDataSourcePaused) || Is(err, ErrRunCanceled)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var trialErr TrialError
	if As(err, &trialErr) {
		return trialErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement TrialError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var trialErr TrialError
	if As(err, &trialErr) {
		return trialErr.Severity()
	}
	return SeverityError
}

// UserMessage returns the text to show a user for err. RunErrors contribute
// only their reason; other user-facing errors their full message; anything
// else collapses to a generic sentence.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var runErr *RunError
	if As(err, &runErr) {
		return runErr.Message()
	}
	if IsUserFacing(err) {
		return err.Error()
	}
	if Is(err, ErrRunCanceled) {
		return "Query execution was canceled."
	}
	return "An internal error occurred."
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
