package checklist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/phasegate/internal/models"
)

const sample = `# Release checklist

Intro paragraph, not an item.

## Navigation

- [x] Home page renders in RTL
- [ ] Menu **collapses** on mobile
- plain bullet, ignored

## Checkout

- [ ] Cart shows item totals
  - [ ] nested discount line
- [X] Payment form validates card number
`

func TestParser_Parse(t *testing.T) {
	cl, err := NewParser().Parse([]byte(sample))
	require.NoError(t, err)

	want := []Item{
		{Section: "Navigation", Text: "Home page renders in RTL", Checked: true},
		{Section: "Navigation", Text: "Menu collapses on mobile"},
		{Section: "Checkout", Text: "Cart shows item totals"},
		{Section: "Checkout", Text: "nested discount line"},
		{Section: "Checkout", Text: "Payment form validates card number", Checked: true},
	}
	assert.Equal(t, want, cl.Items)
}

func TestParser_ParseEmpty(t *testing.T) {
	cl, err := NewParser().Parse([]byte("# Nothing here\n\njust text\n"))
	require.NoError(t, err)
	assert.Empty(t, cl.Items)
}

func result(id string, status models.PhaseStatus, patterns ...string) models.PhaseResult {
	return models.PhaseResult{
		PhaseID: id,
		Status:  status,
		Phase:   models.Phase{ID: id, ChecklistPatterns: patterns},
	}
}

func TestCompute(t *testing.T) {
	cl, err := NewParser().Parse([]byte(sample))
	require.NoError(t, err)

	tests := []struct {
		name         string
		results      []models.PhaseResult
		wantCovered  int
		wantVerified int
	}{
		{
			name:    "no phases",
			results: nil,
		},
		{
			name:         "passed phase covers and verifies",
			results:      []models.PhaseResult{result("home", models.StatusPassed, "home page")},
			wantCovered:  1,
			wantVerified: 1,
		},
		{
			name:        "failed phase only covers",
			results:     []models.PhaseResult{result("cart", models.StatusFailed, "CART")},
			wantCovered: 1,
		},
		{
			name:    "skipped phase does not cover",
			results: []models.PhaseResult{result("cart", models.StatusSkipped, "cart")},
		},
		{
			name: "regex across items",
			results: []models.PhaseResult{
				result("checkout", models.StatusPassed, `^(cart|payment)`),
				result("menu", models.StatusUnknown, "menu"),
			},
			wantCovered:  3,
			wantVerified: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cov, err := Compute(cl, tt.results)
			require.NoError(t, err)
			assert.Equal(t, 5, cov.Total)
			assert.Equal(t, tt.wantCovered, cov.Covered)
			assert.Equal(t, tt.wantVerified, cov.Verified)
			assert.Len(t, cov.Uncovered(), 5-tt.wantCovered)
		})
	}
}

func TestCompute_InvalidPattern(t *testing.T) {
	cl := &Checklist{Items: []Item{{Text: "x"}}}
	_, err := Compute(cl, []models.PhaseResult{result("p", models.StatusPassed, "(")})
	assert.ErrorContains(t, err, "phase p: invalid checklist pattern")
}

func TestCoverage_Percent(t *testing.T) {
	assert.Zero(t, (&Coverage{}).Percent())
	assert.InDelta(t, 40.0, (&Coverage{Total: 5, Verified: 2}).Percent(), 1e-9)
}

func TestProvider_Coverage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checklist.md"), []byte(sample), 0644))

	s := &models.Suite{
		Name:      "shop",
		FilePath:  filepath.Join(dir, "suite.yaml"),
		Checklist: "checklist.md",
		Phases:    []models.Phase{{ID: "home", ChecklistPatterns: []string{"home page"}}},
	}
	// The result carries only the ID; patterns come from the suite.
	got, err := NewProvider().Coverage(context.Background(), s, []models.PhaseResult{{PhaseID: "home", Status: models.StatusPassed}})
	require.NoError(t, err)

	cov, ok := got.(*Coverage)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "checklist.md"), cov.Path)
	assert.Equal(t, 1, cov.Verified)
	assert.Equal(t, []string{"home"}, cov.Items[0].VerifiedBy)
}

func TestProvider_NoChecklist(t *testing.T) {
	got, err := NewProvider().Coverage(context.Background(), &models.Suite{Name: "shop"}, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProvider_MissingFile(t *testing.T) {
	s := &models.Suite{Name: "shop", Checklist: filepath.Join(t.TempDir(), "missing.md")}
	_, err := NewProvider().Coverage(context.Background(), s, nil)
	assert.Error(t, err)
}
