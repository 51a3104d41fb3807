// Package suite rolls phase results up into a SuiteResult.
package suite

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/phasegate/internal/budget"
	"github.com/harrison/phasegate/internal/models"
)

// Summary messages, in precedence order.
const (
	SummaryAllPassed = "All phases passed"
	summaryCritical  = "%d critical issues found"
	summaryIssues    = "Some issues found (%d failed, %d skipped)"
	SummaryNoPhases  = "No phases executed"
)

// Input is everything Aggregate needs about one suite run.
type Input struct {
	RunID      string
	Name       string
	Device     string
	StartedAt  time.Time
	FinishedAt time.Time
	Phases     []models.PhaseResult
}

// ChecklistProvider supplies pre-computed checklist coverage for a suite.
type ChecklistProvider interface {
	Coverage(ctx context.Context, s *models.Suite, results []models.PhaseResult) (interface{}, error)
}

// TrendProvider supplies trend analysis for a suite name.
type TrendProvider interface {
	Trend(ctx context.Context, suiteName string) (interface{}, error)
}

// Logger receives provider failures.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// Aggregate computes the suite result. It is a pure function of its inputs.
func Aggregate(in Input, pricing budget.ModelPricing) *models.SuiteResult {
	res := &models.SuiteResult{
		RunID:      in.RunID,
		Name:       in.Name,
		Device:     in.Device,
		StartedAt:  in.StartedAt,
		FinishedAt: in.FinishedAt,
		Phases:     in.Phases,
	}
	if res.Phases == nil {
		res.Phases = []models.PhaseResult{}
	}

	critical := 0
	for _, p := range in.Phases {
		res.Counts.Total++
		switch p.Status {
		case models.StatusPassed:
			res.Counts.Passed++
		case models.StatusFailed:
			res.Counts.Failed++
		case models.StatusSkipped:
			res.Counts.Skipped++
		default:
			res.Counts.Unknown++
		}
		res.Usage = res.Usage.Add(p.Usage)
		critical += p.Decision.CountSeverity(models.SeverityCritical)
	}

	res.Status = Status(res.Counts)
	res.CostUSD = budget.CostForUsage(res.Usage, pricing)
	res.Summary = summarize(res.Counts, critical)
	return res
}

// Status applies the suite status law: failed only when every phase
// failed, passed when none did, partial otherwise.
func Status(c models.StatusCounts) models.SuiteStatus {
	switch {
	case c.Total > 0 && c.Failed == c.Total:
		return models.SuiteFailed
	case c.Failed == 0:
		return models.SuitePassed
	default:
		return models.SuitePartial
	}
}

func summarize(c models.StatusCounts, critical int) string {
	switch {
	case c.Total == 0:
		return SummaryNoPhases
	case c.Passed == c.Total:
		return SummaryAllPassed
	case critical > 0:
		return fmt.Sprintf(summaryCritical, critical)
	default:
		return fmt.Sprintf(summaryIssues, c.Failed, c.Skipped)
	}
}

// Aggregator attaches checklist and trend data to aggregated results.
type Aggregator struct {
	Pricing   budget.ModelPricing
	Checklist ChecklistProvider
	Trend     TrendProvider
	Logger    Logger
}

// NewAggregator creates an Aggregator with the given pricing and no providers.
func NewAggregator(pricing budget.ModelPricing, logger Logger) *Aggregator {
	return &Aggregator{Pricing: pricing, Logger: logger}
}

// Aggregate computes the suite result and attaches provider data.
func (a *Aggregator) Aggregate(ctx context.Context, s *models.Suite, in Input) *models.SuiteResult {
	res := Aggregate(in, a.Pricing)
	a.Attach(ctx, s, res)
	return res
}

// Attach fills the opaque Checklist and Trend attachments. Provider errors
// are logged and leave the attachment empty.
func (a *Aggregator) Attach(ctx context.Context, s *models.Suite, res *models.SuiteResult) {
	if a.Checklist != nil && s != nil {
		cov, err := a.Checklist.Coverage(ctx, s, res.Phases)
		if err != nil {
			a.warn("checklist coverage for %s: %v", res.Name, err)
		} else {
			res.Checklist = cov
		}
	}
	if a.Trend != nil {
		trend, err := a.Trend.Trend(ctx, res.Name)
		if err != nil {
			a.warn("trend for %s: %v", res.Name, err)
		} else {
			res.Trend = trend
		}
	}
}

func (a *Aggregator) warn(format string, args ...interface{}) {
	if a.Logger != nil {
		a.Logger.Warnf(format, args...)
	}
}
