package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/phasegate/internal/models"
)

func TestParseExecutionErrorPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ExecutionErrorPolicy
		wantErr bool
	}{
		{"", PolicyWarn, false},
		{"warn", PolicyWarn, false},
		{" FAIL ", PolicyFail, false},
		{"ignore", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExecutionErrorPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetryController_Run(t *testing.T) {
	tests := []struct {
		name           string
		outcomes       []attemptOutcome
		maxRetries     int
		policy         ExecutionErrorPolicy
		wantCalls      int
		wantIsolations int
		wantStatus     models.PhaseStatus
		wantVerdict    models.Verdict
		wantError      bool
	}{
		{
			name:        "pass on first attempt",
			outcomes:    []attemptOutcome{passed()},
			maxRetries:  2,
			wantCalls:   1,
			wantStatus:  models.StatusPassed,
			wantVerdict: models.VerdictPass,
		},
		{
			name:        "threshold failure is never retried",
			outcomes:    []attemptOutcome{thresholdFailure(false), passed()},
			maxRetries:  3,
			wantCalls:   1,
			wantStatus:  models.StatusFailed,
			wantVerdict: models.VerdictFail,
		},
		{
			name:           "timeout then success",
			outcomes:       []attemptOutcome{{err: NewTimeoutError("p", time.Second)}, passed()},
			maxRetries:     2,
			wantCalls:      2,
			wantIsolations: 1,
			wantStatus:     models.StatusPassed,
			wantVerdict:    models.VerdictPass,
		},
		{
			name:           "exhausted errors become a warning",
			outcomes:       []attemptOutcome{flaky("nav failed")},
			maxRetries:     2,
			wantCalls:      3,
			wantIsolations: 2,
			wantStatus:     models.StatusPassed,
			wantVerdict:    models.VerdictPass,
			wantError:      true,
		},
		{
			name:           "exhausted errors fail under fail policy",
			outcomes:       []attemptOutcome{flaky("nav failed")},
			maxRetries:     1,
			policy:         PolicyFail,
			wantCalls:      2,
			wantIsolations: 1,
			wantStatus:     models.StatusFailed,
			wantVerdict:    models.VerdictFail,
			wantError:      true,
		},
		{
			name:        "zero retries means one attempt",
			outcomes:    []attemptOutcome{flaky("boom")},
			wantCalls:   1,
			wantStatus:  models.StatusPassed,
			wantVerdict: models.VerdictPass,
			wantError:   true,
		},
		{
			name:        "cancellation is not retried",
			outcomes:    []attemptOutcome{{err: context.Canceled}},
			maxRetries:  3,
			wantCalls:   1,
			wantStatus:  models.StatusUnknown,
			wantVerdict: models.VerdictUnknown,
			wantError:   true,
		},
		{
			name:           "panic is recovered and retried",
			outcomes:       []attemptOutcome{{panic: "nil pointer in page script"}, passed()},
			maxRetries:     1,
			wantCalls:      2,
			wantIsolations: 1,
			wantStatus:     models.StatusPassed,
			wantVerdict:    models.VerdictPass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{outcomes: tt.outcomes}
			renderer := newFakeRenderer()
			logger := &recordingLogger{}
			rc := NewRetryController(runner, renderer, tt.maxRetries, logger)
			if tt.policy != "" {
				rc.Policy = tt.policy
			}

			res := rc.Run(context.Background(), ph("checkout"))

			assert.Equal(t, tt.wantCalls, runner.calls, "attempts")
			assert.LessOrEqual(t, res.Attempts, tt.maxRetries+1)
			assert.Equal(t, tt.wantCalls, res.Attempts)
			assert.Equal(t, tt.wantIsolations, renderer.isolations)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantVerdict, res.Decision.Verdict)
			assert.Equal(t, "checkout", res.PhaseID)
			assert.Equal(t, tt.wantError, res.Error != "")
			assert.Len(t, logger.starts, tt.wantCalls)
		})
	}
}

func TestRetryController_WarnPolicyIssue(t *testing.T) {
	rc := NewRetryController(&scriptedRunner{outcomes: []attemptOutcome{flaky("page crashed")}}, nil, 0, nil)
	res := rc.Run(context.Background(), ph("home"))

	require.Len(t, res.Decision.Issues, 1)
	issue := res.Decision.Issues[0]
	assert.Equal(t, models.SeverityMedium, issue.Severity)
	assert.Equal(t, models.CategoryExecution, issue.Category)
	assert.Contains(t, issue.Description, "page crashed")
	assert.Equal(t, "page crashed", res.Error)
	assert.False(t, res.Decision.HasCritical())
}

func TestRetryController_CancelledIgnoresPolicy(t *testing.T) {
	for _, policy := range []ExecutionErrorPolicy{PolicyWarn, PolicyFail} {
		t.Run(string(policy), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			runner := &cancellingRunner{cancel: cancel}
			rc := NewRetryController(runner, nil, 2, nil)
			rc.Policy = policy

			res := rc.Run(ctx, ph("b"))

			assert.Equal(t, 1, runner.calls)
			assert.Equal(t, models.StatusUnknown, res.Status)
			assert.Equal(t, models.VerdictUnknown, res.Decision.Verdict)
			assert.Equal(t, context.Canceled.Error(), res.Error)
			assert.Empty(t, res.Decision.Issues)
			assert.Contains(t, res.Decision.Reason, "interrupted")
		})
	}
}

// cancellingRunner cancels the run from inside its first attempt.
type cancellingRunner struct {
	cancel context.CancelFunc
	calls  int
}

func (r *cancellingRunner) RunAttempt(ctx context.Context, phase models.Phase) (models.PhaseResult, error) {
	r.calls++
	r.cancel()
	return models.PhaseResult{}, ctx.Err()
}

func TestRetryController_EngineFaultPropagates(t *testing.T) {
	fault := NewExecutionError(StageReconcile, "s", assert.AnError)
	rc := NewRetryController(&scriptedRunner{outcomes: []attemptOutcome{{panic: fault}}}, nil, 3, nil)

	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		assert.Same(t, fault, rec)
	}()
	rc.Run(context.Background(), ph("home"))
	t.Fatal("expected panic")
}
