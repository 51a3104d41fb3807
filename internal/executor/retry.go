package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/phasegate/internal/models"
)

// ExecutionErrorPolicy decides what an exhausted execution error becomes.
type ExecutionErrorPolicy string

const (
	// PolicyWarn reports the error as a warning issue on a passed phase.
	PolicyWarn ExecutionErrorPolicy = "warn"
	// PolicyFail turns the error into a failed phase.
	PolicyFail ExecutionErrorPolicy = "fail"
)

// ParseExecutionErrorPolicy parses a policy name. Empty means PolicyWarn.
func ParseExecutionErrorPolicy(s string) (ExecutionErrorPolicy, error) {
	switch ExecutionErrorPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyWarn:
		return PolicyWarn, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("invalid execution error policy %q (want warn or fail)", s)
	}
}

// Isolator resets shared browser state between attempts.
type Isolator interface {
	IsolatePhase(ctx context.Context) error
}

// RetryController runs a phase with bounded retries. Only execution errors
// are retried; a completed attempt is final whatever its verdict.
type RetryController struct {
	Runner     AttemptRunner
	Isolator   Isolator
	MaxRetries int
	Policy     ExecutionErrorPolicy
	Logger     Logger
}

// NewRetryController creates a RetryController with PolicyWarn.
func NewRetryController(runner AttemptRunner, isolator Isolator, maxRetries int, logger Logger) *RetryController {
	return &RetryController{
		Runner:     runner,
		Isolator:   isolator,
		MaxRetries: maxRetries,
		Policy:     PolicyWarn,
		Logger:     logger,
	}
}

// Run executes the phase until an attempt completes or MaxRetries+1
// attempts have raised execution errors. It never returns an error: an
// exhausted execution error is folded into the result per Policy. An
// attempt cut short by cancellation of ctx ends UNKNOWN regardless of
// Policy.
func (c *RetryController) Run(ctx context.Context, phase models.Phase) models.PhaseResult {
	maxAttempts := c.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	var (
		last    models.PhaseResult
		lastErr error
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.Logger != nil {
			c.Logger.LogPhaseStart(phase, attempt)
		}

		last, lastErr = c.attempt(ctx, phase)
		last.Attempts = attempt

		if lastErr == nil {
			last.Duration = time.Since(start)
			return last
		}

		if !IsFlaky(lastErr) || attempt == maxAttempts {
			break
		}

		if c.Logger != nil {
			c.Logger.LogRetry(phase, attempt, lastErr)
		}
		if c.Isolator != nil {
			if err := c.Isolator.IsolatePhase(ctx); err != nil {
				GracefulWarn(c.Logger, "phase %s: isolation before retry failed: %v", phase.ID, err)
			}
		}
	}

	last.Duration = time.Since(start)
	if ctx.Err() != nil || errors.Is(lastErr, context.Canceled) {
		return interrupted(phase, last, lastErr)
	}
	return c.fold(phase, last, lastErr)
}

// interrupted records an attempt stopped by the caller. The phase did not
// finish, so there is nothing to pass or fail.
func interrupted(phase models.Phase, res models.PhaseResult, err error) models.PhaseResult {
	res.Phase = phase
	res.PhaseID = phase.ID
	res.PhaseName = phase.Name
	res.Error = err.Error()
	res.Status = models.StatusUnknown
	res.Decision = models.Decision{
		Verdict: models.VerdictUnknown,
		Reason:  fmt.Sprintf("interrupted after %d attempt(s): %v", res.Attempts, err),
	}
	return res
}

// attempt runs one attempt, converting a panic from the rendering layer
// into an execution error. Engine faults (ExecutionError) keep unwinding.
func (c *RetryController) attempt(ctx context.Context, phase models.Phase) (res models.PhaseResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if ee, ok := rec.(*ExecutionError); ok {
				panic(ee)
			}
			res = models.PhaseResult{Phase: phase, PhaseID: phase.ID, PhaseName: phase.Name}
			err = NewPhaseError(phase.ID, 0, "panic during execution", fmt.Errorf("%v", rec))
		}
	}()
	return c.Runner.RunAttempt(ctx, phase)
}

// fold converts the last execution error into a final result.
func (c *RetryController) fold(phase models.Phase, res models.PhaseResult, err error) models.PhaseResult {
	res.Phase = phase
	res.PhaseID = phase.ID
	res.PhaseName = phase.Name
	res.Error = err.Error()

	issue := models.Issue{
		Severity:    models.SeverityMedium,
		Category:    models.CategoryExecution,
		Title:       "Phase execution error",
		Description: err.Error(),
		Suggestion:  "Check the application for crashes or navigation failures on this page",
		Confidence:  1.0,
	}
	reason := fmt.Sprintf("execution error after %d attempt(s): %v", res.Attempts, err)

	switch c.Policy {
	case PolicyFail:
		issue.Severity = models.SeverityHigh
		res.Status = models.StatusFailed
		res.Decision = models.Decision{
			Verdict:    models.VerdictFail,
			Confidence: 1.0,
			Reason:     reason,
			Issues:     []models.Issue{issue},
		}
	default:
		res.Status = models.StatusPassed
		res.Decision = models.Decision{
			Verdict:    models.VerdictPass,
			Confidence: 1.0,
			Reason:     reason + "; reported as warning",
			Issues:     []models.Issue{issue},
		}
	}
	return res
}
