package history

import (
	"context"
	"fmt"
	"sort"

	"github.com/harrison/phasegate/internal/models"
)

// Trend compares the latest run of a suite with the run before it.
type Trend struct {
	Suite         string             `json:"suite"`
	Device        string             `json:"device,omitempty"`
	LatestRunID   string             `json:"latest_run_id"`
	PreviousRunID string             `json:"previous_run_id"`
	PassRate      float64            `json:"pass_rate"`
	PassRateDelta float64            `json:"pass_rate_delta"`
	CostDelta     float64            `json:"cost_delta_usd"`
	AnalyzerDelta map[string]float64 `json:"analyzer_delta,omitempty"` // analyzer -> change in average score
	NewlyFailing  []string           `json:"newly_failing,omitempty"`
	NewlyPassing  []string           `json:"newly_passing,omitempty"`
}

// Improving reports whether the pass rate went up without new failures.
func (t *Trend) Improving() bool {
	return t.PassRateDelta > 0 && len(t.NewlyFailing) == 0
}

// SuiteTrend builds a Trend from the two most recent runs of a suite on
// device. An empty device means the device of the latest run. It returns nil
// when fewer than two runs exist.
func (s *Store) SuiteTrend(ctx context.Context, suite, device string) (*Trend, error) {
	if device == "" {
		latest, err := s.RecentRuns(ctx, suite, "", 1)
		if err != nil {
			return nil, err
		}
		if len(latest) == 0 {
			return nil, nil
		}
		device = latest[0].Device
	}

	runs, err := s.RecentRuns(ctx, suite, device, 2)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, nil
	}
	cur, prev := runs[0], runs[1]

	t := &Trend{
		Suite:         suite,
		Device:        cur.Device,
		LatestRunID:   cur.RunID,
		PreviousRunID: prev.RunID,
		PassRate:      cur.PassRate(),
		PassRateDelta: cur.PassRate() - prev.PassRate(),
		CostDelta:     cur.CostUSD - prev.CostUSD,
	}

	curScores, err := s.analyzerAverages(ctx, cur.RunID)
	if err != nil {
		return nil, err
	}
	prevScores, err := s.analyzerAverages(ctx, prev.RunID)
	if err != nil {
		return nil, err
	}
	for name, score := range curScores {
		if before, ok := prevScores[name]; ok {
			if t.AnalyzerDelta == nil {
				t.AnalyzerDelta = make(map[string]float64)
			}
			t.AnalyzerDelta[name] = score - before
		}
	}

	curPhases, err := s.phaseStatuses(ctx, cur.RunID)
	if err != nil {
		return nil, err
	}
	prevPhases, err := s.phaseStatuses(ctx, prev.RunID)
	if err != nil {
		return nil, err
	}
	for id, status := range curPhases {
		before, ok := prevPhases[id]
		if !ok {
			continue
		}
		switch {
		case status == models.StatusFailed && before != models.StatusFailed:
			t.NewlyFailing = append(t.NewlyFailing, id)
		case status == models.StatusPassed && before == models.StatusFailed:
			t.NewlyPassing = append(t.NewlyPassing, id)
		}
	}
	sort.Strings(t.NewlyFailing)
	sort.Strings(t.NewlyPassing)

	return t, nil
}

// Trend satisfies suite.TrendProvider. No history yields a nil attachment.
func (s *Store) Trend(ctx context.Context, suite string) (interface{}, error) {
	t, err := s.SuiteTrend(ctx, suite, "")
	if err != nil {
		return nil, fmt.Errorf("trend for %s: %w", suite, err)
	}
	if t == nil {
		return nil, nil
	}
	return t, nil
}
