// Package errors provides centralized error definitions and error handling
// utilities for gantry. It defines domain-specific errors, semantic error
// types, error constructors with context wrapping, and classification
// helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - ResolveError: dependency resolution failures (fatal to a run)
//   - GraphError: invalid dependency graphs (cycles, unknown edges)
//   - StageError: per-item fetch/build/install failures
//   - ConfigError: configuration loading and validation failures
//
// Semantic errors represent common conditions:
//   - TimeoutError: a stage operation exceeded its deadline
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewStageError("checksum mismatch", cause).
//		WithStage("install").WithKey("libfoo@1.2.0")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrInvalidTransition) { ... }
//
//	var stageErr *errors.StageError
//	if errors.As(err, &stageErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//	if errors.IsFatal(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// Callers import only this package for all error handling.
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
	// SeverityCritical is for errors that end the run before any work starts.
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

// Item model sentinel errors
var (
	// ErrInvalidTransition indicates a state change that violates the
	// pipeline's forward-only state order.
	ErrInvalidTransition = New("invalid state transition")
	// ErrItemNotFound indicates that no item with the given key exists.
	ErrItemNotFound = New("item not found")
	// ErrInvalidGraph indicates an unusable dependency graph (cycle,
	// self-dependency, or an edge to an unknown item).
	ErrInvalidGraph = New("invalid dependency graph")
)

// Run sentinel errors
var (
	// ErrTimeout indicates that a stage operation exceeded its deadline.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that the run was canceled before the operation
	// could start or complete.
	ErrCanceled = New("operation canceled")
	// ErrBadRequirement indicates a malformed requirement string.
	ErrBadRequirement = New("malformed requirement")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// GantryError is the base interface for all gantry errors. It extends the
// standard error interface with classification methods.
type GantryError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

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
	retryable  bool
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

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ResolveError represents a dependency resolution failure. Resolution runs
// once per run, so a ResolveError is always fatal: no stage work starts.
//
// Example:
//
//	err := errors.NewResolveError("no version satisfies constraint", cause).
//		WithRequirement("libfoo@^2.0")
type ResolveError struct {
	baseError
	Requirement string
}

// NewResolveError creates a new ResolveError.
func NewResolveError(message string, cause error) *ResolveError {
	return &ResolveError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithRequirement adds the offending requirement to the error context.
func (e *ResolveError) WithRequirement(req string) *ResolveError {
	e.Requirement = req
	return e
}

// Error returns the formatted error message.
func (e *ResolveError) Error() string {
	prefix := "resolve error"
	if e.Requirement != "" {
		prefix = fmt.Sprintf("resolve error [req=%s]", e.Requirement)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ResolveError) Is(target error) bool {
	if _, ok := target.(*ResolveError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GraphError represents an unusable dependency graph. Like resolution
// failures it is fatal: the run ends before any stage work.
//
// Example:
//
//	err := errors.NewGraphError("dependency cycle detected", errors.ErrInvalidGraph).
//		WithCycle([]string{"a@1.0.0", "b@1.0.0", "a@1.0.0"})
type GraphError struct {
	baseError
	Cycle []string
}

// NewGraphError creates a new GraphError.
func NewGraphError(message string, cause error) *GraphError {
	return &GraphError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithCycle records the cycle path for display.
func (e *GraphError) WithCycle(cycle []string) *GraphError {
	e.Cycle = cycle
	return e
}

// Error returns the formatted error message.
func (e *GraphError) Error() string {
	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("graph error: %s (%s)", msg, strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("graph error: %s", msg)
}

// Is checks if this error matches the target.
func (e *GraphError) Is(target error) bool {
	if _, ok := target.(*GraphError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidGraph) {
		return true
	}
	return e.baseError.Is(target)
}

// StageError represents a per-item failure in fetch, build, or install.
// It fails the one item it names; siblings are unaffected.
//
// Example:
//
//	err := errors.NewStageError("artifact download failed", cause).
//		WithStage("fetch").WithKey("libfoo@1.2.0").WithRetryable(true)
type StageError struct {
	baseError
	Stage string
	Key   string
}

// NewStageError creates a new StageError.
func NewStageError(message string, cause error) *StageError {
	return &StageError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithStage adds the stage name to the error context.
func (e *StageError) WithStage(stage string) *StageError {
	e.Stage = stage
	return e
}

// WithKey adds the item key to the error context.
func (e *StageError) WithKey(key string) *StageError {
	e.Key = key
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *StageError) WithRetryable(r bool) *StageError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *StageError) Error() string {
	var parts []string
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("item=%s", e.Key))
	}

	prefix := "stage error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("stage error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ConfigError represents a configuration loading or validation failure.
//
// Example:
//
//	err := errors.NewConfigError("must be non-negative").
//		WithField("concurrency").WithValue(-2)
type ConfigError struct {
	baseError
	Field string
	Value any
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ConfigError) WithField(field string) *ConfigError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ConfigError) WithValue(value any) *ConfigError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ConfigError) WithCause(cause error) *ConfigError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "config error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("config error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// TimeoutError represents a stage operation that exceeded its deadline.
//
// Example:
//
//	err := errors.NewTimeoutError("fetch libfoo@1.2.0", 5*time.Minute)
//	fmt.Println(err) // "timeout error: fetch libfoo@1.2.0 (timeout: 5m0s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing GantryError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var gerr GantryError
	if As(err, &gerr) {
		return gerr.IsRetryable()
	}

	if Is(err, ErrTimeout) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end
// users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var gerr GantryError
	if As(err, &gerr) {
		return gerr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement GantryError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var gerr GantryError
	if As(err, &gerr) {
		return gerr.Severity()
	}

	return SeverityError
}

// IsFatal returns true if the error ends a run before any stage work can
// start (resolution failures and unusable graphs).
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var resolveErr *ResolveError
	var graphErr *GraphError
	if As(err, &resolveErr) || As(err, &graphErr) {
		return true
	}

	return GetSeverity(err) >= SeverityCritical
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with an additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to read manifest")
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
//	err := errors.Wrapf(baseErr, "failed to fetch %s", key)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
