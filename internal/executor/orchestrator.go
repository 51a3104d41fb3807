package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harrison/phasegate/internal/analyzer"
	"github.com/harrison/phasegate/internal/browser"
	"github.com/harrison/phasegate/internal/budget"
	"github.com/harrison/phasegate/internal/decision"
	"github.com/harrison/phasegate/internal/models"
	"github.com/harrison/phasegate/internal/suite"
	"github.com/harrison/phasegate/internal/vision"
)

// Recorder persists finished suite runs.
type Recorder interface {
	RecordSuite(ctx context.Context, result *models.SuiteResult) error
}

// Options tunes a suite run.
type Options struct {
	MaxRetries  int
	StepTimeout time.Duration
	Policy      ExecutionErrorPolicy
}

// Orchestrator drives one suite run on one device: it owns the renderer
// for the duration of the run and always releases it.
type Orchestrator struct {
	NewRenderer browser.Factory
	FanOut      *analyzer.FanOut
	Vision      vision.Provider
	Reconciler  *decision.Reconciler
	Aggregator  *suite.Aggregator
	Recorder    Recorder
	Usage       *budget.UsageTracker
	Logger      Logger
	Options     Options
}

// NewOrchestrator creates a new Orchestrator.
// The logger parameter is optional and can be nil.
func NewOrchestrator(factory browser.Factory, logger Logger) *Orchestrator {
	if factory == nil {
		panic("renderer factory cannot be nil")
	}
	return &Orchestrator{
		NewRenderer: factory,
		Vision:      vision.Disabled{},
		Reconciler:  decision.NewReconciler(nil),
		Aggregator:  suite.NewAggregator(budget.DefaultPricing(), logger),
		Logger:      logger,
		Options:     Options{Policy: PolicyWarn},
	}
}

// RunSuite executes every phase of s on device and returns the aggregated
// result. Phase-level problems never produce an error; an error means the
// run could not start, was cancelled, or was aborted by an engine fault.
// When aborted or cancelled, the result still carries every phase that
// finished.
func (o *Orchestrator) RunSuite(ctx context.Context, s *models.Suite, device string) (result *models.SuiteResult, err error) {
	if s == nil {
		return nil, fmt.Errorf("suite cannot be nil")
	}
	if err := ValidatePhases(s.Phases); err != nil {
		return nil, NewExecutionError(StageGraph, s.Name, err)
	}
	if BuildDependencyGraph(s.Phases).HasCycle() {
		return nil, NewExecutionError(StageGraph, s.Name, fmt.Errorf("circular dependency detected"))
	}

	renderer, err := o.NewRenderer(device)
	if err != nil {
		return nil, fmt.Errorf("create renderer for %s: %w", device, err)
	}

	in := suite.Input{
		RunID:     uuid.NewString(),
		Name:      s.Name,
		Device:    device,
		StartedAt: time.Now(),
	}

	defer func() {
		if cerr := renderer.Close(); cerr != nil {
			GracefulWarn(o.Logger, "close renderer: %v", cerr)
			if err == nil {
				err = NewExecutionError(StageShutdown, s.Name, cerr)
			}
		}
	}()

	if err := renderer.Launch(ctx); err != nil {
		return nil, fmt.Errorf("launch renderer for %s: %w", device, err)
	}

	agg := o.aggregator()
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		var ee *ExecutionError
		if e, ok := rec.(*ExecutionError); ok {
			ee = e
		} else {
			ee = NewExecutionError(StagePhase, s.Name, fmt.Errorf("panic: %v", rec))
		}
		GracefulWarn(o.Logger, "%v", ee)

		in.FinishedAt = time.Now()
		result = suite.Aggregate(in, agg.Pricing)
		err = ee
	}()

	ge := o.graphExecutor(renderer, s.Name, device)
	ge.OnResult = func(r models.PhaseResult) {
		in.Phases = append(in.Phases, r)
	}
	ge.Execute(ctx, s.Phases)

	in.FinishedAt = time.Now()
	result = suite.Aggregate(in, agg.Pricing)
	if o.Usage != nil {
		o.Usage.Record(s.Name, device, result.Usage)
	}

	// An interrupted run is incomplete; it is neither recorded nor passed.
	if cerr := ctx.Err(); cerr != nil {
		ee := NewExecutionError(StagePhase, s.Name, cerr)
		GracefulWarn(o.Logger, "%v", ee)
		return result, ee
	}

	// History first so the trend includes this run.
	if o.Recorder != nil {
		if rerr := o.Recorder.RecordSuite(ctx, result); rerr != nil {
			GracefulWarn(o.Logger, "record history for %s: %v", s.Name, rerr)
		}
	}
	agg.Attach(ctx, s, result)

	if o.Logger != nil {
		o.Logger.LogSummary(*result)
	}
	return result, nil
}

func (o *Orchestrator) aggregator() *suite.Aggregator {
	if o.Aggregator != nil {
		return o.Aggregator
	}
	return suite.NewAggregator(budget.DefaultPricing(), o.Logger)
}

func (o *Orchestrator) graphExecutor(renderer browser.Renderer, suiteName, device string) *GraphExecutor {
	runner := &PhaseRunner{
		Renderer:    renderer,
		FanOut:      o.FanOut,
		Vision:      o.Vision,
		Reconciler:  o.Reconciler,
		StepTimeout: o.Options.StepTimeout,
		SuiteName:   suiteName,
		Device:      device,
		Logger:      o.Logger,
	}
	rc := NewRetryController(runner, renderer, o.Options.MaxRetries, o.Logger)
	if o.Options.Policy != "" {
		rc.Policy = o.Options.Policy
	}
	return NewGraphExecutor(rc, renderer, o.Logger)
}

// Job is one suite on one device profile.
type Job struct {
	Suite  *models.Suite
	Device string
}

// JobResult pairs a job with its outcome.
type JobResult struct {
	Job    Job
	Result *models.SuiteResult
	Err    error
}

// SuiteRunner runs one job. Orchestrator implements it.
type SuiteRunner interface {
	RunSuite(ctx context.Context, s *models.Suite, device string) (*models.SuiteResult, error)
}

// progressLogger is implemented by loggers that render pool progress.
type progressLogger interface {
	LogProgress(done, total int)
}

// Pool runs jobs in parallel, each on its own renderer, with at most Size
// jobs in flight.
type Pool struct {
	Runner SuiteRunner
	Size   int
	Logger Logger

	// HandleSignals cancels the run on SIGINT/SIGTERM.
	HandleSignals bool
}

// NewPool creates a Pool. A size below 1 means 1.
func NewPool(runner SuiteRunner, size int, logger Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{Runner: runner, Size: size, Logger: logger, HandleSignals: true}
}

// Run executes all jobs and returns their results in job order. The
// returned error joins every job error.
func (p *Pool) Run(ctx context.Context, jobs []Job) ([]JobResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if p.HandleSignals {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		go func() {
			select {
			case <-sigChan:
				GracefulWarn(p.Logger, "received interrupt signal, shutting down gracefully...")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	size := p.Size
	if size < 1 {
		size = 1
	}

	progress, _ := p.Logger.(progressLogger)
	var done int32

	results := make([]JobResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(size)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := p.Runner.RunSuite(ctx, job.Suite, job.Device)
			results[i] = JobResult{Job: job, Result: res, Err: err}
			if progress != nil {
				progress.LogProgress(int(atomic.AddInt32(&done, 1)), len(jobs))
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			name := "<nil>"
			if r.Job.Suite != nil {
				name = r.Job.Suite.Name
			}
			errs = append(errs, fmt.Errorf("%s on %s: %w", name, r.Job.Device, r.Err))
		}
	}
	return results, errors.Join(errs...)
}
