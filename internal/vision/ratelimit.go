package vision

import (
	"context"

	"github.com/harrison/phasegate/internal/budget"
	"github.com/harrison/phasegate/internal/models"
)

// RateLimited wraps a Provider and waits out rate limits reported in its
// errors before trying again. Limits that reset later than the waiter's
// maximum are returned as errors immediately.
type RateLimited struct {
	Provider   Provider
	Waiter     *budget.RateLimitWaiter
	MaxRetries int
}

// NewRateLimited wraps p. maxRetries bounds how many limits are waited out per call.
func NewRateLimited(p Provider, waiter *budget.RateLimitWaiter, maxRetries int) *RateLimited {
	return &RateLimited{Provider: p, Waiter: waiter, MaxRetries: maxRetries}
}

// Analyze calls the wrapped provider.
func (r *RateLimited) Analyze(ctx context.Context, screenshotPath string, pc PhaseContext) (*models.AIVerdict, error) {
	for attempt := 0; ; attempt++ {
		v, err := r.Provider.Analyze(ctx, screenshotPath, pc)
		if err == nil || r.Waiter == nil || attempt >= r.MaxRetries {
			return v, err
		}

		info := budget.ParseRateLimit(err.Error())
		if info == nil || !r.Waiter.ShouldWait(info) {
			return v, err
		}
		if werr := r.Waiter.WaitForReset(ctx, info); werr != nil {
			return nil, werr
		}
	}
}
