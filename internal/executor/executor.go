package executor

import (
	"context"

	"github.com/harrison/phasegate/internal/models"
)

// Logger defines the interface for logging suite progress and results.
type Logger interface {
	LogPhaseStart(phase models.Phase, attempt int)
	LogPhaseResult(result models.PhaseResult)
	LogPhaseSkipped(phase models.Phase, reason string)
	LogRetry(phase models.Phase, attempt int, err error)
	LogOverride(phase models.Phase, breach models.ThresholdBreach)
	LogSummary(result models.SuiteResult)
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// ReasonDependenciesNotMet is the decision reason of a gated phase.
const ReasonDependenciesNotMet = "Dependencies not met"

// PhaseExecutor runs one phase to a final result. RetryController implements it.
type PhaseExecutor interface {
	Run(ctx context.Context, phase models.Phase) models.PhaseResult
}

// ArtifactClearer drops per-phase artifacts between phases.
type ArtifactClearer interface {
	ClearArtifacts() error
}

// GraphExecutor walks phases in list order on a single worker, gating each
// on its declared dependencies.
type GraphExecutor struct {
	Runner    PhaseExecutor
	Artifacts ArtifactClearer
	Logger    Logger

	// OnResult, when set, observes every recorded result as it is produced.
	OnResult func(models.PhaseResult)
}

// NewGraphExecutor creates a GraphExecutor.
func NewGraphExecutor(runner PhaseExecutor, artifacts ArtifactClearer, logger Logger) *GraphExecutor {
	if runner == nil {
		panic("phase runner cannot be nil")
	}
	return &GraphExecutor{Runner: runner, Artifacts: artifacts, Logger: logger}
}

// Execute runs the phases and returns one result per processed phase.
//
// A phase whose dependency is unknown, skipped, or failed with an execution
// error is recorded as skipped without running. A phase that ends FAIL with
// a critical issue stops the walk; later phases are absent from the result.
// Cancellation of ctx also stops the walk between phases.
func (e *GraphExecutor) Execute(ctx context.Context, phases []models.Phase) []models.PhaseResult {
	results := make([]models.PhaseResult, 0, len(phases))
	executed := make(map[string]models.PhaseResult, len(phases))

	for i, phase := range phases {
		if err := ctx.Err(); err != nil {
			GracefulWarn(e.Logger, "stopping before phase %s: %v", phase.ID, err)
			break
		}

		if i > 0 && e.Artifacts != nil {
			if err := e.Artifacts.ClearArtifacts(); err != nil {
				GracefulWarn(e.Logger, "clear artifacts before phase %s: %v", phase.ID, err)
			}
		}

		var res models.PhaseResult
		if !dependenciesMet(phase, executed) {
			res = skippedResult(phase)
			if e.Logger != nil {
				e.Logger.LogPhaseSkipped(phase, ReasonDependenciesNotMet)
			}
		} else {
			res = e.Runner.Run(ctx, phase)
			e.logResult(phase, res)
		}

		results = append(results, res)
		executed[phase.ID] = res
		if e.OnResult != nil {
			e.OnResult(res)
		}

		if res.Decision.Verdict == models.VerdictFail && res.Decision.HasCritical() {
			GracefulWarn(e.Logger, "phase %s failed with critical issues, stopping suite", phase.ID)
			break
		}
	}

	return results
}

func (e *GraphExecutor) logResult(phase models.Phase, res models.PhaseResult) {
	if e.Logger == nil {
		return
	}
	for _, breach := range res.Decision.Overrides {
		e.Logger.LogOverride(phase, breach)
	}
	e.Logger.LogPhaseResult(res)
}

// dependenciesMet reports whether every dependency already ran, was not
// skipped, and did not fail with an execution error.
func dependenciesMet(phase models.Phase, executed map[string]models.PhaseResult) bool {
	for _, dep := range phase.DependsOn {
		res, ok := executed[dep]
		if !ok {
			return false
		}
		if res.Status == models.StatusSkipped {
			return false
		}
		if res.Status == models.StatusFailed && res.HasExecutionError() {
			return false
		}
	}
	return true
}

func skippedResult(phase models.Phase) models.PhaseResult {
	return models.PhaseResult{
		Phase:     phase,
		PhaseID:   phase.ID,
		PhaseName: phase.Name,
		Status:    models.StatusSkipped,
		Decision: models.Decision{
			Verdict: models.VerdictUnknown,
			Reason:  ReasonDependenciesNotMet,
		},
	}
}
