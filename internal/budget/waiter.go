package budget

import (
	"context"
	"time"
)

// WaiterLogger receives countdown updates while waiting out a rate limit
type WaiterLogger interface {
	LogRateLimitCountdown(remaining, total time.Duration)
}

// RateLimitWaiter decides whether a rate limit is worth waiting out and
// blocks until it resets.
type RateLimitWaiter struct {
	maxWait      time.Duration // Longer limits are not waited for
	announceInt  time.Duration // Countdown interval
	safetyBuffer time.Duration // Extra wait after reset
	logger       WaiterLogger  // Can be nil
}

// NewRateLimitWaiter creates a waiter with the given configuration
func NewRateLimitWaiter(maxWait, announceInterval, safetyBuffer time.Duration, logger WaiterLogger) *RateLimitWaiter {
	if announceInterval <= 0 {
		announceInterval = 10 * time.Second
	}
	return &RateLimitWaiter{
		maxWait:      maxWait,
		announceInt:  announceInterval,
		safetyBuffer: safetyBuffer,
		logger:       logger,
	}
}

// ShouldWait returns true if the limit resets within maxWait.
// If info is nil, returns false
func (w *RateLimitWaiter) ShouldWait(info *RateLimitInfo) bool {
	if info == nil {
		return false
	}
	return info.TimeUntilReset() <= w.maxWait
}

// WaitForReset blocks until the rate limit resets plus the safety buffer.
// Returns nil on successful wait, the context error if cancelled.
func (w *RateLimitWaiter) WaitForReset(ctx context.Context, info *RateLimitInfo) error {
	if info == nil {
		return nil
	}

	totalWait := w.TimeUntilResume(info)
	deadline := time.NewTimer(totalWait)
	defer deadline.Stop()

	ticker := time.NewTicker(w.announceInt)
	defer ticker.Stop()

	endTime := time.Now().Add(totalWait)
	if w.logger != nil {
		w.logger.LogRateLimitCountdown(totalWait, totalWait)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case now := <-ticker.C:
			if remaining := endTime.Sub(now); remaining > 0 && w.logger != nil {
				w.logger.LogRateLimitCountdown(remaining, totalWait)
			}
		}
	}
}

// TimeUntilResume returns the total time to wait including safety buffer
func (w *RateLimitWaiter) TimeUntilResume(info *RateLimitInfo) time.Duration {
	if info == nil {
		return 0
	}
	if info.IsExpired() {
		return w.safetyBuffer
	}
	return info.TimeUntilReset() + w.safetyBuffer
}
