package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/harrison/phasegate/internal/analyzer"
	"github.com/harrison/phasegate/internal/browser"
	"github.com/harrison/phasegate/internal/budget"
	"github.com/harrison/phasegate/internal/checklist"
	"github.com/harrison/phasegate/internal/config"
	"github.com/harrison/phasegate/internal/decision"
	"github.com/harrison/phasegate/internal/executor"
	"github.com/harrison/phasegate/internal/history"
	"github.com/harrison/phasegate/internal/logger"
	"github.com/harrison/phasegate/internal/models"
	"github.com/harrison/phasegate/internal/suite"
	"github.com/harrison/phasegate/internal/vision"
)

// defaultDevice is used when neither the suite nor the command line names one.
const defaultDevice = "desktop"

// rendererFactory builds a Factory for a suite's base URL.
type rendererFactory func(baseURL string) browser.Factory

func httpRenderers(artifactDir string) rendererFactory {
	return func(baseURL string) browser.Factory {
		return func(device string) (browser.Renderer, error) {
			return browser.NewHTTPRenderer(baseURL, artifactDir, device), nil
		}
	}
}

// engine holds the components shared by every suite run of one invocation.
type engine struct {
	cfg        *config.Config
	logger     logger.RunLogger
	renderers  rendererFactory
	fanOut     *analyzer.FanOut
	vision     vision.Provider
	reconciler *decision.Reconciler
	aggregator *suite.Aggregator
	store      *history.Store
	usage      *budget.UsageTracker
}

// newEngine wires configuration into the engine components. The caller
// must call close.
func newEngine(cfg *config.Config, log logger.RunLogger, renderers rendererFactory) (*engine, error) {
	e := &engine{cfg: cfg, logger: log, renderers: renderers}

	registry := analyzer.NewRegistry()
	names := make([]string, 0, len(cfg.Analyzers))
	for name := range cfg.Analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a, err := analyzer.NewCommandAnalyzer(name, cfg.Analyzers[name])
		if err != nil {
			return nil, fmt.Errorf("analyzer %s: %w", name, err)
		}
		if err := registry.Register(a); err != nil {
			return nil, err
		}
	}
	e.fanOut = analyzer.NewFanOut(registry.All(), cfg.AnalyzerTimeout, log)

	e.vision = vision.Disabled{}
	if len(cfg.Vision.Command) > 0 {
		p, err := vision.NewCommandProvider(cfg.Vision.Command, cfg.Vision.Timeout)
		if err != nil {
			return nil, fmt.Errorf("vision: %w", err)
		}
		waiter := budget.NewRateLimitWaiter(cfg.RateLimit.MaxWait, cfg.RateLimit.AnnounceInterval, 0, log)
		e.vision = vision.NewRateLimited(p, waiter, cfg.RateLimit.MaxRetries)
	}

	thresholds := decision.Thresholds{}
	for k, v := range cfg.Thresholds {
		thresholds[k] = v
	}
	e.reconciler = decision.NewReconciler(thresholds)
	e.reconciler.BoostFactor = cfg.ConfidenceBoost
	e.reconciler.Logger = log

	pricing := budget.ModelPricing{
		InputPer1M:  cfg.Pricing.InputPer1M,
		OutputPer1M: cfg.Pricing.OutputPer1M,
		InputShare:  cfg.Pricing.InputShare,
	}
	e.usage = budget.NewUsageTracker(pricing)
	e.aggregator = suite.NewAggregator(pricing, log)
	e.aggregator.Checklist = checklist.NewProvider()

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		e.store = store
		e.aggregator.Trend = store
	}
	return e, nil
}

func (e *engine) close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// orchestrator builds the orchestrator for one suite; renderers are bound to
// the suite's base URL.
func (e *engine) orchestrator(s *models.Suite) (*executor.Orchestrator, error) {
	policy, err := executor.ParseExecutionErrorPolicy(e.cfg.ExecutionErrorPolicy)
	if err != nil {
		return nil, err
	}

	o := executor.NewOrchestrator(e.renderers(s.BaseURL), e.logger)
	o.FanOut = e.fanOut
	o.Vision = e.vision
	o.Reconciler = e.reconciler
	o.Aggregator = e.aggregator
	o.Usage = e.usage
	if e.store != nil {
		o.Recorder = e.store
	}
	o.Options = executor.Options{
		MaxRetries:  e.cfg.MaxRetries,
		StepTimeout: e.cfg.StepTimeout,
		Policy:      policy,
	}
	return o, nil
}

// RunSuite implements executor.SuiteRunner.
func (e *engine) RunSuite(ctx context.Context, s *models.Suite, device string) (*models.SuiteResult, error) {
	o, err := e.orchestrator(s)
	if err != nil {
		return nil, err
	}
	return o.RunSuite(ctx, s, device)
}

// buildJobs expands suites into one job per device. Devices given on the
// command line replace the devices a suite declares.
func buildJobs(suites []*models.Suite, devices []string) []executor.Job {
	var jobs []executor.Job
	for _, s := range suites {
		ds := devices
		if len(ds) == 0 {
			ds = s.Devices
		}
		if len(ds) == 0 {
			ds = []string{defaultDevice}
		}
		for _, d := range ds {
			jobs = append(jobs, executor.Job{Suite: s, Device: d})
		}
	}
	return jobs
}
