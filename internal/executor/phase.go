package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harrison/phasegate/internal/analyzer"
	"github.com/harrison/phasegate/internal/browser"
	"github.com/harrison/phasegate/internal/decision"
	"github.com/harrison/phasegate/internal/models"
	"github.com/harrison/phasegate/internal/vision"
)

// DefaultStepTimeout bounds a single interaction step when neither the step
// nor the configuration sets one.
const DefaultStepTimeout = 30 * time.Second

// AttemptRunner executes one attempt of a phase.
type AttemptRunner interface {
	RunAttempt(ctx context.Context, phase models.Phase) (models.PhaseResult, error)
}

// PhaseRunner drives one phase attempt against a renderer: it performs the
// steps, captures artifacts, fans the settled page out to the analyzers
// while the vision provider judges the screenshot, and reconciles both.
type PhaseRunner struct {
	Renderer    browser.Renderer
	FanOut      *analyzer.FanOut
	Vision      vision.Provider
	Reconciler  *decision.Reconciler
	StepTimeout time.Duration
	SuiteName   string
	Device      string
	Logger      Logger
}

// RunAttempt executes the phase once. A returned error is an execution
// error: the phase did not reach a decision. Threshold failures are not
// errors; they come back as a FAIL decision.
func (r *PhaseRunner) RunAttempt(ctx context.Context, phase models.Phase) (models.PhaseResult, error) {
	start := time.Now()
	result := models.PhaseResult{
		Phase:     phase,
		PhaseID:   phase.ID,
		PhaseName: phase.Name,
		Status:    models.StatusUnknown,
	}

	for i, step := range phase.Steps {
		if err := r.runStep(ctx, phase, i+1, step); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
	}

	screenshot, err := r.Renderer.CaptureScreenshot(ctx)
	if err != nil {
		if !errors.Is(err, browser.ErrScreenshotUnsupported) {
			GracefulWarn(r.Logger, "phase %s: screenshot capture failed: %v", phase.ID, err)
		}
		screenshot = ""
	}
	result.ScreenshotPath = screenshot

	htmlPath, err := r.Renderer.CaptureHTML(ctx)
	if err != nil {
		result.Duration = time.Since(start)
		return result, NewPhaseError(phase.ID, 0, "capture html", err)
	}
	result.HTMLPath = htmlPath

	page := r.Renderer.Page()
	scores, ai := r.analyze(ctx, phase, page, screenshot, htmlPath)

	d := r.reconcile(ctx, phase, ai, scores)

	result.Decision = d
	result.Status = models.StatusForVerdict(d.Verdict)
	result.Analyzers = scores
	result.Usage = ai.Usage
	result.Duration = time.Since(start)
	return result, nil
}

func (r *PhaseRunner) runStep(ctx context.Context, phase models.Phase, index int, step models.Step) error {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.StepTimeout
	}
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := r.Renderer.Execute(stepCtx, step)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		te := NewTimeoutError(phase.ID, timeout)
		te.Context = describeStep(index, step)
		return te
	}
	return NewPhaseError(phase.ID, index, fmt.Sprintf("%s failed", step.Action), err)
}

func describeStep(index int, step models.Step) string {
	target := step.Target
	if step.Selector != "" {
		target = step.Selector
	}
	if target == "" {
		return fmt.Sprintf("step %d %s", index, step.Action)
	}
	return fmt.Sprintf("step %d %s %s", index, step.Action, target)
}

// analyze runs the analyzer fan-out and the vision call concurrently. Both
// sides are guarded: neither can fail the attempt.
func (r *PhaseRunner) analyze(ctx context.Context, phase models.Phase, page browser.Page, screenshot, htmlPath string) (map[string]*models.AnalyzerResult, *models.AIVerdict) {
	var (
		scores map[string]*models.AnalyzerResult
		ai     *models.AIVerdict
		wg     sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if r.FanOut == nil {
			scores = map[string]*models.AnalyzerResult{}
			return
		}
		scores = r.FanOut.Run(ctx, page)
	}()

	go func() {
		defer wg.Done()
		ai = r.judge(ctx, phase, page, screenshot, htmlPath)
	}()

	wg.Wait()
	return scores, ai
}

func (r *PhaseRunner) judge(ctx context.Context, phase models.Phase, page browser.Page, screenshot, htmlPath string) (ai *models.AIVerdict) {
	if r.Vision == nil {
		return models.UnknownVerdict("no vision provider configured")
	}

	defer func() {
		if rec := recover(); rec != nil {
			GracefulWarn(r.Logger, "phase %s: vision provider panicked: %v", phase.ID, rec)
			ai = models.UnknownVerdict("vision provider failed")
		}
	}()

	pc := vision.PhaseContext{
		SuiteName: r.SuiteName,
		PhaseID:   phase.ID,
		PhaseName: phase.Name,
		HTMLPath:  htmlPath,
		Device:    r.Device,
		Checklist: phase.ChecklistPatterns,
	}
	if page != nil {
		pc.URL = page.URL()
	}

	v, err := r.Vision.Analyze(ctx, screenshot, pc)
	if err != nil {
		GracefulWarn(r.Logger, "phase %s: vision analysis failed: %v", phase.ID, err)
		return models.UnknownVerdict("vision analysis failed: " + err.Error())
	}
	if v == nil {
		return models.UnknownVerdict("vision provider returned no verdict")
	}
	return v
}

// reconcile converts a panic inside reconciliation into a suite-level
// ExecutionError. Retry does not apply to engine faults.
func (r *PhaseRunner) reconcile(ctx context.Context, phase models.Phase, ai *models.AIVerdict, scores map[string]*models.AnalyzerResult) models.Decision {
	defer func() {
		if rec := recover(); rec != nil {
			panic(NewExecutionError(StageReconcile, r.SuiteName, fmt.Errorf("phase %s: %v", phase.ID, rec)))
		}
	}()

	rec := r.Reconciler
	if rec == nil {
		rec = decision.NewReconciler(nil)
	}
	return rec.Reconcile(ctx, ai, scores, r.Renderer)
}
