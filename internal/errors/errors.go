// Package errors provides centralized error definitions and error handling utilities
// for the scheduling engine. It defines sentinel errors, the semantic error types
// used across the dependency engine and the assignment layer, constructors with
// context wrapping, and error classification helpers.
//
// # Error Types
//
// The engine reports failures through four semantic types:
//   - ValidationError: structurally invalid input (self-dependency, duplicate
//     edge, cross-scope edge, malformed split spec, oversized graph)
//   - CycleError: an edge would close a cycle, or an existing cycle prevents
//     a computation such as the critical path
//   - NotFoundError: a task, dependency edge, or worker does not exist
//   - InvalidStateError: an operation is not allowed in the entity's current
//     state (splitting a started task, illegal status transition, reassigning
//     a terminal task)
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewValidationError("task cannot depend on itself").
//		WithField("dependsOn").WithCause(errors.ErrSelfDependency)
//
//	err := errors.NewCycleError([]string{"a", "b", "a"})
//
//	err := errors.NewNotFoundError("task", "t-42")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrDependencyCycle) { ... }
//
//	var cycleErr *errors.CycleError
//	if errors.As(err, &cycleErr) { fmt.Println(cycleErr.Path) }
//
// Single-entity operations return one of these before any write happens.
// Batch operations capture them per item instead of returning them.
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
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
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
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Dependency graph sentinel errors
var (
	// ErrSelfDependency indicates a task was asked to depend on itself.
	ErrSelfDependency = New("task cannot depend on itself")
	// ErrDuplicateDependency indicates the dependency edge already exists.
	ErrDuplicateDependency = New("dependency already exists")
	// ErrCrossScope indicates the two tasks belong to different work orders.
	ErrCrossScope = New("tasks belong to different work orders")
	// ErrDependencyCycle indicates a circular dependency in tasks.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrGraphTooLarge indicates a graph exceeded the configured size limits.
	ErrGraphTooLarge = New("dependency graph exceeds configured limits")
)

// Lookup sentinel errors
var (
	// ErrTaskNotFound indicates that a task could not be found.
	ErrTaskNotFound = New("task not found")
	// ErrDependencyNotFound indicates that a dependency edge does not exist.
	ErrDependencyNotFound = New("dependency not found")
	// ErrWorkerNotFound indicates that a worker could not be found.
	ErrWorkerNotFound = New("worker not found")
)

// State sentinel errors
var (
	// ErrIllegalTransition indicates a status change the state machine forbids.
	ErrIllegalTransition = New("illegal status transition")
	// ErrTerminalTask indicates the task is already completed, failed or cancelled.
	ErrTerminalTask = New("task is in a terminal state")
	// ErrNotSplittable indicates the task has already started or finished.
	ErrNotSplittable = New("task cannot be split in its current state")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrNoCandidate indicates no worker satisfied the selection criteria.
	ErrNoCandidate = New("no eligible candidate")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// EngineError is the base interface for all scheduling engine errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type EngineError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input.
//
// Example:
//
//	err := errors.NewValidationError("dependency already exists")
//	err = err.WithField("dependsOn").WithValue("t-2")
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

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
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

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// CycleError reports a dependency cycle, either one an insertion would have
// closed or one found in existing data.
//
// Example:
//
//	err := errors.NewCycleError([]string{"t-1", "t-2", "t-1"})
//	fmt.Println(err) // "cycle error [path=t-1 -> t-2 -> t-1]: dependency cycle detected"
type CycleError struct {
	baseError
	// Path lists the task IDs along the cycle. It may be empty when the
	// cycle was detected without reconstructing it (e.g. by Kahn's algorithm).
	Path []string
	// TaskID and DependsOnID identify the rejected edge, if any.
	TaskID      string
	DependsOnID string
}

// NewCycleError creates a new CycleError for the given path.
func NewCycleError(path []string) *CycleError {
	cp := make([]string, len(path))
	copy(cp, path)
	return &CycleError{
		baseError: baseError{
			message:    ErrDependencyCycle.Error(),
			severity:   SeverityError,
			userFacing: true,
		},
		Path: cp,
	}
}

// WithEdge records the edge whose insertion was rejected.
func (e *CycleError) WithEdge(taskID, dependsOnID string) *CycleError {
	e.TaskID = taskID
	e.DependsOnID = dependsOnID
	return e
}

// WithMessage replaces the default message.
func (e *CycleError) WithMessage(message string) *CycleError {
	e.message = message
	return e
}

// Error returns the formatted error message.
func (e *CycleError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("edge=%s->%s", e.TaskID, e.DependsOnID))
	}
	if len(e.Path) > 0 {
		parts = append(parts, fmt.Sprintf("path=%s", strings.Join(e.Path, " -> ")))
	}

	prefix := "cycle error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("cycle error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *CycleError) Is(target error) bool {
	if _, ok := target.(*CycleError); ok {
		return true
	}
	return target == ErrDependencyCycle
}

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("task", "t-42")
//	fmt.Println(err) // "task 't-42' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			cause:      sentinelFor(resourceType),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// sentinelFor maps well-known resource types to their sentinel so callers
// can match with errors.Is(err, ErrTaskNotFound).
func sentinelFor(resourceType string) error {
	switch resourceType {
	case "task":
		return ErrTaskNotFound
	case "worker":
		return ErrWorkerNotFound
	case "dependency":
		return ErrDependencyNotFound
	default:
		return nil
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// InvalidStateError represents an operation that is not allowed for the
// current state of an entity.
//
// Example:
//
//	err := errors.NewInvalidStateError("cannot split task", errors.ErrNotSplittable).
//		WithEntity("t-1").WithStates("IN_PROGRESS", "")
type InvalidStateError struct {
	baseError
	EntityID string
	From     string
	To       string
}

// NewInvalidStateError creates a new InvalidStateError.
func NewInvalidStateError(message string, cause error) *InvalidStateError {
	return &InvalidStateError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithEntity adds the affected entity ID to the error context.
func (e *InvalidStateError) WithEntity(id string) *InvalidStateError {
	e.EntityID = id
	return e
}

// WithStates records the current state and, for transitions, the requested one.
func (e *InvalidStateError) WithStates(from, to string) *InvalidStateError {
	e.From = from
	e.To = to
	return e
}

// Error returns the formatted error message.
func (e *InvalidStateError) Error() string {
	var parts []string
	if e.EntityID != "" {
		parts = append(parts, fmt.Sprintf("entity=%s", e.EntityID))
	}
	if e.From != "" {
		parts = append(parts, fmt.Sprintf("from=%s", e.From))
	}
	if e.To != "" {
		parts = append(parts, fmt.Sprintf("to=%s", e.To))
	}

	prefix := "invalid state"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("invalid state [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *InvalidStateError) Is(target error) bool {
	if _, ok := target.(*InvalidStateError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement EngineError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.Severity()
	}
	return SeverityError
}

// Kind returns a short machine-readable classification of err, used as a
// metric label and in batch results.
func Kind(err error) string {
	var (
		validation *ValidationError
		cycle      *CycleError
		notFound   *NotFoundError
		state      *InvalidStateError
	)
	switch {
	case err == nil:
		return "ok"
	case As(err, &cycle):
		return "cycle"
	case As(err, &validation):
		return "validation"
	case As(err, &notFound):
		return "not_found"
	case As(err, &state):
		return "invalid_state"
	default:
		return "internal"
	}
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
//
// Example:
//
//	err := errors.Wrap(baseErr, "load work order")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "save task %s", taskID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
