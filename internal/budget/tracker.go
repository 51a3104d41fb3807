package budget

import (
	"sort"
	"sync"
	"time"

	"github.com/harrison/phasegate/internal/models"
)

// DefaultInputShare is the fraction of total tokens priced as input when
// only a total is known.
const DefaultInputShare = 0.7

// ModelPricing defines cost per million tokens for the vision model.
// Used to calculate USD cost from token usage.
type ModelPricing struct {
	InputPer1M  float64 // Cost per 1M input tokens
	OutputPer1M float64 // Cost per 1M output tokens
	InputShare  float64 // Share of total tokens priced as input, 0 = DefaultInputShare
}

// DefaultPricing returns the pricing used when configuration sets none.
func DefaultPricing() ModelPricing {
	return ModelPricing{
		InputPer1M:  3.00,
		OutputPer1M: 15.00,
		InputShare:  DefaultInputShare,
	}
}

func (p ModelPricing) share() float64 {
	if p.InputShare <= 0 || p.InputShare > 1 {
		return DefaultInputShare
	}
	return p.InputShare
}

// CostForTokens converts a total token count into USD by splitting it
// between input and output at the pricing's input share.
//
// Example: 1,000,000 tokens at $3/$15 with a 70/30 split
// = 0.7 * 3 + 0.3 * 15 = $6.60
func CostForTokens(total int64, pricing ModelPricing) float64 {
	if total <= 0 {
		return 0
	}
	share := pricing.share()
	millions := float64(total) / 1_000_000
	return millions*share*pricing.InputPer1M + millions*(1-share)*pricing.OutputPer1M
}

// CostForUsage prices a usage by its total. The input/output split reported
// by the provider is not trusted for pricing; the configured share is.
func CostForUsage(u models.TokenUsage, pricing ModelPricing) float64 {
	total := u.Total
	if total == 0 {
		total = u.Input + u.Output
	}
	return CostForTokens(total, pricing)
}

// UsageEntry records the token usage of one suite run.
type UsageEntry struct {
	Timestamp time.Time
	Suite     string
	Device    string
	Usage     models.TokenUsage
	CostUSD   float64
}

// UsageTracker accumulates token usage across concurrent suite runs.
// Thread-safe.
type UsageTracker struct {
	mu      sync.RWMutex
	pricing ModelPricing
	entries []UsageEntry
}

// NewUsageTracker creates a tracker pricing usage with the given model pricing.
func NewUsageTracker(pricing ModelPricing) *UsageTracker {
	return &UsageTracker{
		pricing: pricing,
		entries: make([]UsageEntry, 0),
	}
}

// Record adds the usage of one run and returns its cost.
func (t *UsageTracker) Record(suite, device string, usage models.TokenUsage) float64 {
	cost := CostForUsage(usage, t.pricing)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, UsageEntry{
		Timestamp: time.Now(),
		Suite:     suite,
		Device:    device,
		Usage:     usage,
		CostUSD:   cost,
	})
	return cost
}

// Total returns the summed usage and cost of all recorded runs.
func (t *UsageTracker) Total() (models.TokenUsage, float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var usage models.TokenUsage
	var cost float64
	for _, e := range t.entries {
		usage = usage.Add(e.Usage)
		cost += e.CostUSD
	}
	return usage, cost
}

// Entries returns a copy of the recorded entries, oldest first.
func (t *UsageTracker) Entries() []UsageEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entriesCopy := make([]UsageEntry, len(t.entries))
	copy(entriesCopy, t.entries)
	sort.SliceStable(entriesCopy, func(i, j int) bool {
		return entriesCopy[i].Timestamp.Before(entriesCopy[j].Timestamp)
	})
	return entriesCopy
}

// BySuite returns cost per suite name.
func (t *UsageTracker) BySuite() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	costs := make(map[string]float64)
	for _, e := range t.entries {
		costs[e.Suite] += e.CostUSD
	}
	return costs
}
