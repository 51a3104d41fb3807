package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExecutionStage represents the stage of a suite run where an error occurred.
type ExecutionStage int

const (
	// StageGraph represents errors during dependency validation.
	StageGraph ExecutionStage = iota
	// StagePhase represents errors while driving a phase.
	StagePhase
	// StageReconcile represents errors during fan-out or reconciliation.
	StageReconcile
	// StageShutdown represents errors while releasing the rendering context.
	StageShutdown
)

// String returns the string representation of ExecutionStage.
func (s ExecutionStage) String() string {
	switch s {
	case StageGraph:
		return "graph"
	case StagePhase:
		return "phase"
	case StageReconcile:
		return "reconcile"
	case StageShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// PhaseError is an execution error raised while driving a phase: a failed
// navigation, a crashed page, an action that could not be performed.
// PhaseErrors are flaky by classification and eligible for retry.
type PhaseError struct {
	PhaseID   string    // Phase that failed
	Step      int       // 1-based step index, 0 when not step-specific
	Message   string    // Human-readable error message
	Err       error     // Underlying error (optional)
	Timestamp time.Time // When the error occurred
}

// NewPhaseError creates a new PhaseError with the current timestamp.
func NewPhaseError(phaseID string, step int, msg string, err error) *PhaseError {
	return &PhaseError{
		PhaseID:   phaseID,
		Step:      step,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface for PhaseError.
func (e *PhaseError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("phase %s", e.PhaseID))
	if e.Step > 0 {
		sb.WriteString(fmt.Sprintf(" step %d", e.Step))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *PhaseError) Unwrap() error {
	return e.Err
}

// TimeoutError represents a step that exceeded its deadline.
type TimeoutError struct {
	PhaseID         string        // Phase the step belongs to
	TimeoutDuration time.Duration // Duration after which timeout occurred
	Context         string        // What was happening (optional)
	Timestamp       time.Time     // When the timeout occurred
}

// NewTimeoutError creates a new TimeoutError with the current timestamp.
func NewTimeoutError(phaseID string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		PhaseID:         phaseID,
		TimeoutDuration: duration,
		Timestamp:       time.Now(),
	}
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("phase %s: timeout after %v", e.PhaseID, e.TimeoutDuration))
	if e.Context != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", e.Context))
	}
	return sb.String()
}

// Unwrap returns context.DeadlineExceeded to support error wrapping.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// ExecutionError aborts a whole suite run. It is reserved for unexpected
// failures inside the engine itself; phase-level problems never produce one.
type ExecutionError struct {
	Stage ExecutionStage
	Suite string
	Err   error
}

// NewExecutionError creates an ExecutionError for the given stage.
func NewExecutionError(stage ExecutionStage, suite string, err error) *ExecutionError {
	return &ExecutionError{Stage: stage, Suite: suite, Err: err}
}

// Error implements the error interface for ExecutionError.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("suite %s aborted in %s stage: %v", e.Suite, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsPhaseError checks if the error is or wraps a PhaseError.
func IsPhaseError(err error) bool {
	if err == nil {
		return false
	}
	var pe *PhaseError
	return errors.As(err, &pe)
}

// IsTimeoutError checks if the error is or wraps a TimeoutError or context.DeadlineExceeded.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsExecutionError checks if the error is or wraps an ExecutionError.
func IsExecutionError(err error) bool {
	if err == nil {
		return false
	}
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// IsFlaky classifies an attempt error as retryable. Every execution error
// is flaky except caller cancellation, which no retry can fix.
func IsFlaky(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
