package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/phasegate/internal/models"
)

// fakeDOM answers from a fixed set of selectors and fails for others listed in errs.
type fakeDOM struct {
	present map[string]bool
	errs    map[string]bool
	calls   int
}

func (f *fakeDOM) ValidateDOM(ctx context.Context, selector string) (bool, error) {
	f.calls++
	if f.errs[selector] {
		return false, errors.New("page crashed")
	}
	return f.present[selector], nil
}

func TestReconcile_RTLThresholdBreachFails(t *testing.T) {
	r := NewReconciler(Thresholds{"rtl": 6.0, "code_quality": 5.0})
	ai := &models.AIVerdict{Verdict: models.VerdictPass, Confidence: 0.9, Reason: "Looks good"}
	scores := map[string]*models.AnalyzerResult{
		"rtl": {Score: 4.0, SubScores: []models.SubScore{
			{Name: "text_alignment", Score: 7.0},
			{Name: "mirroring", Score: 2.5},
			{Name: "direction_attr", Score: 3.0},
		}},
		"code_quality": {Score: 8.0},
	}

	d := r.Reconcile(context.Background(), ai, scores, &fakeDOM{})

	assert.Equal(t, models.VerdictFail, d.Verdict)
	assert.Equal(t, models.StatusFailed, models.StatusForVerdict(d.Verdict))
	assert.Contains(t, d.Reason, "rtl score 4.0 below minimum 6.0 (mirroring: 2.5, direction_attr: 3.0)")
	assert.NotContains(t, d.Reason, "code_quality")
	require.Len(t, d.Overrides, 1)
	assert.Equal(t, "rtl", d.Overrides[0].Metric)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
}

func TestReconcile_AIFailIsAdvisoryOnly(t *testing.T) {
	r := NewReconciler(nil)
	ai := &models.AIVerdict{
		Verdict:    models.VerdictFail,
		Confidence: 0.8,
		Reason:     "Button overlaps footer",
		Issues:     []models.Issue{{Severity: models.SeverityHigh, Title: "overlap", Confidence: 0.7}},
	}

	d := r.Reconcile(context.Background(), ai, nil, nil)

	assert.Equal(t, models.VerdictPass, d.Verdict)
	require.Len(t, d.Issues, 1, "issues stay visible even when the phase passes")
	assert.Contains(t, d.Reason, "Button overlaps footer")
	assert.Contains(t, d.Reason, "0 critical, 1 high issues")
}

func TestReconcile_UnknownVerdict(t *testing.T) {
	r := NewReconciler(nil)
	d := r.Reconcile(context.Background(), &models.AIVerdict{Verdict: models.VerdictUnknown, Confidence: 0.5}, nil, nil)
	assert.Equal(t, models.VerdictUnknown, d.Verdict)
	assert.Contains(t, d.Reason, "manual review recommended")

	d = r.Reconcile(context.Background(), nil, nil, nil)
	assert.Equal(t, models.VerdictUnknown, d.Verdict)
}

func TestReconcile_UnknownWithBreachFails(t *testing.T) {
	r := NewReconciler(Thresholds{"rtl": 6})
	d := r.Reconcile(context.Background(),
		&models.AIVerdict{Verdict: models.VerdictUnknown},
		map[string]*models.AnalyzerResult{"rtl": {Score: 1}}, nil)
	assert.Equal(t, models.VerdictFail, d.Verdict)
	assert.NotContains(t, d.Reason, "manual review")
}

func TestReconcile_MultipleBreachesAppendIndependently(t *testing.T) {
	r := NewReconciler(Thresholds{"rtl": 6, "code_quality": 5})
	d := r.Reconcile(context.Background(),
		&models.AIVerdict{Verdict: models.VerdictPass, Confidence: 1},
		map[string]*models.AnalyzerResult{
			"rtl":          {Score: 5},
			"code_quality": {Score: 2, SubScores: []models.SubScore{{Name: "dead_code", Score: 6}}},
		}, nil)

	assert.Equal(t, models.VerdictFail, d.Verdict)
	require.Len(t, d.Overrides, 2)
	assert.Contains(t, d.Reason, "code_quality score 2.0 below minimum 5.0 (dead_code: 6.0)")
	assert.Contains(t, d.Reason, "rtl score 5.0 below minimum 6.0")
}

func TestReconcile_MissingAnalyzerSkipsThreshold(t *testing.T) {
	r := NewReconciler(Thresholds{"rtl": 6})
	d := r.Reconcile(context.Background(), &models.AIVerdict{Verdict: models.VerdictPass, Confidence: 1}, map[string]*models.AnalyzerResult{}, nil)
	assert.Equal(t, models.VerdictPass, d.Verdict)
}

func TestReconcile_DOMValidation(t *testing.T) {
	dom := &fakeDOM{
		present: map[string]bool{"#header": true},
		errs:    map[string]bool{".flaky": true},
	}
	ai := &models.AIVerdict{
		Verdict:    models.VerdictPass,
		Confidence: 1.0,
		Issues: []models.Issue{
			{Title: "real", Location: "#header", Confidence: 0.5},
			{Title: "hallucinated", Location: "#sidebar", Confidence: 0.9},
			{Title: "query error", Description: "The .flaky element flickers", Confidence: 0.4},
			{Title: "no selector", Description: "Colors feel off", Confidence: 0.3},
		},
	}

	d := NewReconciler(nil).Reconcile(context.Background(), ai, nil, dom)

	require.Len(t, d.Issues, 3)
	assert.Equal(t, "real", d.Issues[0].Title)
	assert.InDelta(t, 0.6, d.Issues[0].Confidence, 1e-9)
	assert.Equal(t, "query error", d.Issues[1].Title)
	assert.InDelta(t, 0.4, d.Issues[1].Confidence, 1e-9)
	assert.Equal(t, "no selector", d.Issues[2].Title)
	assert.InDelta(t, 0.3, d.Issues[2].Confidence, 1e-9)

	// 3 of 4 survived: 1.0 * (0.7 + 0.3*0.75)
	assert.InDelta(t, 0.925, d.Confidence, 1e-9)
	assert.Equal(t, 0.5, ai.Issues[0].Confidence, "input must not be mutated")
}

func TestReconcile_BoostIsCapped(t *testing.T) {
	dom := &fakeDOM{present: map[string]bool{"#x": true}}
	ai := &models.AIVerdict{Verdict: models.VerdictPass, Issues: []models.Issue{{Location: "#x", Confidence: 0.95}}}
	d := NewReconciler(nil).Reconcile(context.Background(), ai, nil, dom)
	assert.Equal(t, 1.0, d.Issues[0].Confidence)
}

func TestReconcile_LowConfidencePenalty(t *testing.T) {
	issues := make([]models.Issue, 4)
	for i := range issues {
		issues[i] = models.Issue{Title: "vague", Confidence: 0.5}
	}
	ai := &models.AIVerdict{Verdict: models.VerdictPass, Confidence: 0.8, Issues: issues}
	d := NewReconciler(nil).Reconcile(context.Background(), ai, nil, nil)
	assert.InDelta(t, 0.72, d.Confidence, 1e-9)

	ai.Issues = issues[:3]
	d = NewReconciler(nil).Reconcile(context.Background(), ai, nil, nil)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
}

func TestReconcile_AllIssuesDroppedGivesFloorCredit(t *testing.T) {
	dom := &fakeDOM{}
	ai := &models.AIVerdict{Verdict: models.VerdictPass, Confidence: 1, Issues: []models.Issue{{Location: "#ghost"}}}
	d := NewReconciler(nil).Reconcile(context.Background(), ai, nil, dom)
	assert.Empty(t, d.Issues)
	assert.InDelta(t, 0.7, d.Confidence, 1e-9)
}

func TestReconcile_Idempotent(t *testing.T) {
	r := NewReconciler(nil)
	dom := &fakeDOM{present: map[string]bool{"#a": true}}
	ai := &models.AIVerdict{
		Verdict:    models.VerdictPass,
		Confidence: 0.7,
		Reason:     "ok",
		Issues: []models.Issue{
			{Severity: models.SeverityCritical, Category: "layout", Location: "#a", Confidence: 0.6},
			{Severity: models.SeverityLow, Category: "hardcoded_text", Confidence: 0.2},
		},
	}
	scores := map[string]*models.AnalyzerResult{
		"rtl":          {Score: 3, SubScores: []models.SubScore{{Name: "b", Score: 1}, {Name: "a", Score: 1}}},
		"code_quality": {Score: 1},
		"forms":        {Score: 9, Findings: []models.Finding{{Kind: "layout"}}},
	}

	first := r.Reconcile(context.Background(), ai, scores, dom)
	second := r.Reconcile(context.Background(), ai, scores, dom)
	assert.Equal(t, first, second)
	assert.Contains(t, first.Reason, "2 layout findings")
	assert.Contains(t, first.Reason, "1 hardcoded-text findings")
	assert.Contains(t, first.Reason, "(a: 1.0, b: 1.0)")
}

func TestReconcile_ReasonOrder(t *testing.T) {
	r := NewReconciler(Thresholds{"rtl": 6})
	ai := &models.AIVerdict{
		Verdict: models.VerdictPass,
		Reason:  "AI says",
		Issues:  []models.Issue{{Severity: models.SeverityCritical, Category: "rtl"}},
	}
	d := r.Reconcile(context.Background(), ai, map[string]*models.AnalyzerResult{"rtl": {Score: 2}}, nil)
	assert.Equal(t, "AI says; 1 critical, 0 high issues; 1 layout findings; rtl score 2.0 below minimum 6.0", d.Reason)
}

func TestExtractSelector(t *testing.T) {
	tests := []struct {
		name  string
		issue models.Issue
		want  string
		ok    bool
	}{
		{"id location", models.Issue{Location: "#checkout-btn"}, "#checkout-btn", true},
		{"tag class location", models.Issue{Location: "button.primary"}, "button.primary", true},
		{"attr location", models.Issue{Location: "input[name=email]"}, "input[name=email]", true},
		{"descendant location takes qualified part", models.Issue{Location: "nav .menu"}, ".menu", true},
		{"backticked description", models.Issue{Description: "The `div.card` overflows"}, "div.card", true},
		{"class in prose", models.Issue{Description: "The .banner text is clipped"}, ".banner", true},
		{"id in prose", models.Issue{Description: "Element #logo is blurry"}, "#logo", true},
		{"filename is not a selector", models.Issue{Description: "see index.html"}, "", false},
		{"abbreviation is not a selector", models.Issue{Description: "e.g. colors"}, "", false},
		{"plain prose", models.Issue{Description: "Contrast is low"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractSelector(tt.issue)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
