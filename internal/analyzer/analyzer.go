// Package analyzer defines the Analyzer capability contract and the
// concurrent fan-out that runs every analyzer against one settled page.
package analyzer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/phasegate/internal/browser"
	"github.com/harrison/phasegate/internal/models"
)

// MaxScore is the upper bound of an analyzer score.
const MaxScore = 10.0

// Analyzer is a named, read-only scorer. Implementations must not mutate
// the page or navigation state: all analyzers of a phase share one Page.
type Analyzer interface {
	Name() string
	Run(ctx context.Context, page browser.Page) (*models.AnalyzerResult, error)
}

// Logger receives analyzer failures. Implementations must be safe for concurrent use.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// FanOut runs a set of analyzers concurrently and collects their results.
type FanOut struct {
	Analyzers []Analyzer
	Timeout   time.Duration // per-analyzer timeout, 0 = none
	Logger    Logger
}

// NewFanOut creates a FanOut over the given analyzers.
func NewFanOut(analyzers []Analyzer, timeout time.Duration, logger Logger) *FanOut {
	return &FanOut{Analyzers: analyzers, Timeout: timeout, Logger: logger}
}

// Run executes every analyzer against page and returns results keyed by
// analyzer name. A failing, panicking or timed-out analyzer is logged and
// left out of the map; it never fails the phase.
func (f *FanOut) Run(ctx context.Context, page browser.Page) map[string]*models.AnalyzerResult {
	results := make(map[string]*models.AnalyzerResult, len(f.Analyzers))
	if len(f.Analyzers) == 0 {
		return results
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, a := range f.Analyzers {
		a := a
		g.Go(func() error {
			res, err := f.runOne(ctx, a, page)
			if err != nil {
				f.warn("analyzer %s produced no result: %v", a.Name(), err)
				return nil
			}
			mu.Lock()
			results[a.Name()] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

type outcome struct {
	res *models.AnalyzerResult
	err error
}

// runOne returns as soon as the analyzer finishes or its deadline passes,
// whichever comes first. An analyzer that ignores ctx is abandoned.
func (f *FanOut) runOne(ctx context.Context, a Analyzer, page browser.Page) (*models.AnalyzerResult, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := a.Run(ctx, page)
		done <- outcome{res: res, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if o.err != nil {
		return nil, o.err
	}
	if o.res == nil {
		return nil, fmt.Errorf("nil result")
	}

	out := *o.res
	out.Name = a.Name()
	out.Score = ClampScore(out.Score)
	if out.Duration == 0 {
		out.Duration = time.Since(start)
	}
	return &out, nil
}

func (f *FanOut) warn(format string, args ...interface{}) {
	if f.Logger != nil {
		f.Logger.Warnf(format, args...)
	}
}

// ClampScore bounds a score to [0, MaxScore].
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}

// Func adapts a function to the Analyzer interface.
type Func struct {
	AnalyzerName string
	Fn           func(ctx context.Context, page browser.Page) (*models.AnalyzerResult, error)
}

// Name returns the analyzer name.
func (f Func) Name() string { return f.AnalyzerName }

// Run calls the wrapped function.
func (f Func) Run(ctx context.Context, page browser.Page) (*models.AnalyzerResult, error) {
	return f.Fn(ctx, page)
}
