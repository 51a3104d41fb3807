package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/phasegate/internal/models"
)

func sampleResult() *models.SuiteResult {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.SuiteResult{
		RunID:      "run-1",
		Name:       "shop/checkout",
		Device:     "mobile",
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Status:     models.SuitePartial,
		Summary:    "1 critical issues found",
		CostUSD:    0.012,
		Counts:     models.StatusCounts{Total: 1, Passed: 1},
		Phases: []models.PhaseResult{{
			PhaseID:  "cart",
			Status:   models.StatusPassed,
			Decision: models.Decision{Verdict: models.VerdictPass, Confidence: 0.9},
		}},
		Checklist: map[string]int{"covered": 3},
		Trend:     map[string]float64{"pass_rate_delta": 0.5},
	}
}

func TestWriter_Path(t *testing.T) {
	w := NewWriter("/reports")

	r := sampleResult()
	assert.Equal(t, filepath.Join("/reports", "shop_checkout-mobile-run-1.json"), w.Path(r))

	r.Device = ""
	assert.Equal(t, filepath.Join("/reports", "shop_checkout-default-run-1.json"), w.Path(r))
}

func TestWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w := NewWriter(dir)

	path, err := w.Write(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"run_id\": \"run-1\"", "pretty printed")

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "partial", doc["status"])
	assert.Equal(t, map[string]interface{}{"covered": float64(3)}, doc["checklist"])
	assert.Equal(t, map[string]interface{}{"pass_rate_delta": 0.5}, doc["trend"])
	assert.Len(t, doc["phases"], 1)
}

func TestWriter_WriteCompact(t *testing.T) {
	w := &Writer{Dir: t.TempDir()}
	path, err := w.Write(context.Background(), sampleResult())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\n")
}

func TestWriter_WriteErrors(t *testing.T) {
	w := NewWriter(t.TempDir())

	_, err := w.Write(context.Background(), nil)
	assert.Error(t, err)

	r := sampleResult()
	r.RunID = ""
	_, err = w.Write(context.Background(), r)
	assert.ErrorContains(t, err, "no run id")
}

func TestWriter_WriteIndex(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []models.SuiteStatus
		wantPassed bool
	}{
		{"all passed", []models.SuiteStatus{models.SuitePassed, models.SuitePassed}, true},
		{"one partial", []models.SuiteStatus{models.SuitePassed, models.SuitePartial}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(t.TempDir())
			var results []*models.SuiteResult
			for i, st := range tt.statuses {
				r := sampleResult()
				r.RunID = string(rune('a' + i))
				r.Status = st
				results = append(results, r)
			}
			results = append(results, nil)

			path, err := w.WriteIndex(context.Background(), results)
			require.NoError(t, err)
			assert.Equal(t, IndexFile, filepath.Base(path))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			var idx Index
			require.NoError(t, json.Unmarshal(data, &idx))
			assert.Equal(t, tt.wantPassed, idx.Passed)
			assert.Len(t, idx.Runs, len(tt.statuses))
			if len(idx.Runs) > 0 {
				assert.Equal(t, "shop_checkout-mobile-a.json", idx.Runs[0].Report)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "unnamed", sanitize("  "))
	assert.Equal(t, "a_b_c.d-e", sanitize("a/b c.d-e"))
}
