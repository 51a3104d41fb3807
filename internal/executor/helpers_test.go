package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harrison/phasegate/internal/browser"
	"github.com/harrison/phasegate/internal/models"
)

// recordingLogger captures executor log calls.
type recordingLogger struct {
	mu        sync.Mutex
	starts    []string
	results   []models.PhaseResult
	skipped   []string
	retries   []int
	overrides []models.ThresholdBreach
	summaries []models.SuiteResult
	warnings  []string
}

func (l *recordingLogger) LogPhaseStart(phase models.Phase, attempt int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, fmt.Sprintf("%s#%d", phase.ID, attempt))
}

func (l *recordingLogger) LogPhaseResult(result models.PhaseResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
}

func (l *recordingLogger) LogPhaseSkipped(phase models.Phase, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skipped = append(l.skipped, phase.ID)
}

func (l *recordingLogger) LogRetry(phase models.Phase, attempt int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retries = append(l.retries, attempt)
}

func (l *recordingLogger) LogOverride(phase models.Phase, breach models.ThresholdBreach) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides = append(l.overrides, breach)
}

func (l *recordingLogger) LogSummary(result models.SuiteResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summaries = append(l.summaries, result)
}

func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Infof(format string, args ...interface{})  {}
func (l *recordingLogger) Debugf(format string, args ...interface{}) {}

// fakePage is a static page handle.
type fakePage struct {
	url      string
	elements map[string]bool
}

func (p *fakePage) URL() string      { return p.url }
func (p *fakePage) HTMLPath() string { return "/tmp/page.html" }
func (p *fakePage) Query(ctx context.Context, selector string) (bool, error) {
	return p.elements[selector], nil
}

// fakeRenderer scripts step outcomes and counts lifecycle calls.
type fakeRenderer struct {
	mu sync.Mutex

	page       *fakePage
	stepErrs   map[string][]error // step target -> error per call, nil = success
	stepPanic  string             // step target that panics
	blockStep  string             // step target that blocks until ctx is done
	onNavigate func(target string)
	shotErr    error
	htmlErr    error
	launchErr  error
	closeErr   error
	executed   []string
	launched   int
	closed     int
	isolations int
	clears     int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		page:     &fakePage{url: "http://app.test/", elements: map[string]bool{}},
		stepErrs: map[string][]error{},
		shotErr:  browser.ErrScreenshotUnsupported,
	}
}

func (r *fakeRenderer) Launch(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launched++
	return r.launchErr
}

func (r *fakeRenderer) Execute(ctx context.Context, step models.Step) error {
	r.mu.Lock()
	r.executed = append(r.executed, step.Target)
	var err error
	if errs := r.stepErrs[step.Target]; len(errs) > 0 {
		err = errs[0]
		r.stepErrs[step.Target] = errs[1:]
	}
	panicStep, blockStep := r.stepPanic, r.blockStep
	if step.Action == models.ActionNavigate && r.onNavigate != nil {
		r.onNavigate(step.Target)
	}
	r.mu.Unlock()

	if step.Target == panicStep {
		panic("page crashed")
	}
	if step.Target == blockStep {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (r *fakeRenderer) CaptureScreenshot(ctx context.Context) (string, error) {
	if r.shotErr != nil {
		return "", r.shotErr
	}
	return "/tmp/shot.png", nil
}

func (r *fakeRenderer) CaptureHTML(ctx context.Context) (string, error) {
	if r.htmlErr != nil {
		return "", r.htmlErr
	}
	return "/tmp/page.html", nil
}

func (r *fakeRenderer) ClearArtifacts() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	return nil
}

func (r *fakeRenderer) IsolatePhase(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isolations++
	return nil
}

func (r *fakeRenderer) ValidateDOM(ctx context.Context, selector string) (bool, error) {
	return r.page.Query(ctx, selector)
}

func (r *fakeRenderer) Page() browser.Page { return r.page }

func (r *fakeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return r.closeErr
}

// scriptedRunner returns canned attempt outcomes in order.
type scriptedRunner struct {
	outcomes []attemptOutcome
	calls    int
}

type attemptOutcome struct {
	result models.PhaseResult
	err    error
	panic  interface{}
}

func (s *scriptedRunner) RunAttempt(ctx context.Context, phase models.Phase) (models.PhaseResult, error) {
	o := s.outcomes[len(s.outcomes)-1]
	if s.calls < len(s.outcomes) {
		o = s.outcomes[s.calls]
	}
	s.calls++
	if o.panic != nil {
		panic(o.panic)
	}
	res := o.result
	res.Phase = phase
	res.PhaseID = phase.ID
	res.PhaseName = phase.Name
	return res, o.err
}

func passed() attemptOutcome {
	return attemptOutcome{result: models.PhaseResult{
		Status:   models.StatusPassed,
		Decision: models.Decision{Verdict: models.VerdictPass, Confidence: 0.9},
	}}
}

func thresholdFailure(critical bool) attemptOutcome {
	sev := models.SeverityHigh
	if critical {
		sev = models.SeverityCritical
	}
	return attemptOutcome{result: models.PhaseResult{
		Status: models.StatusFailed,
		Decision: models.Decision{
			Verdict:   models.VerdictFail,
			Issues:    []models.Issue{{Severity: sev, Title: "broken layout"}},
			Overrides: []models.ThresholdBreach{{Metric: "rtl", Score: 4, Minimum: 6}},
		},
	}}
}

func flaky(msg string) attemptOutcome {
	return attemptOutcome{err: errors.New(msg)}
}

// phaseRunnerFunc adapts a function to PhaseExecutor.
type phaseRunnerFunc func(ctx context.Context, phase models.Phase) models.PhaseResult

func (f phaseRunnerFunc) Run(ctx context.Context, phase models.Phase) models.PhaseResult {
	return f(ctx, phase)
}
