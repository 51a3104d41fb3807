// Package decision reconciles the advisory AI verdict with analyzer scores
// into the final phase Decision.
//
// The AI judgment is never allowed to fail a phase on its own. Only the
// configured analyzer thresholds can force a FAIL.
package decision

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harrison/phasegate/internal/models"
)

const (
	// DefaultBoostFactor multiplies the confidence of issues confirmed in the DOM.
	DefaultBoostFactor = 1.2

	// partialCreditFloor is the confidence multiplier when no issue survived validation.
	partialCreditFloor = 0.7

	lowConfidenceCutoff  = 0.6
	lowConfidenceLimit   = 3
	lowConfidencePenalty = 0.9
)

// Thresholds maps an analyzer name to the minimum score it must reach.
type Thresholds map[string]float64

// DefaultThresholds returns the authoritative analyzer thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		"rtl":          6.0,
		"code_quality": 5.0,
	}
}

// metrics returns threshold names in a stable order.
func (t Thresholds) metrics() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DOMValidator answers whether a selector exists on the rendered page.
type DOMValidator interface {
	ValidateDOM(ctx context.Context, selector string) (bool, error)
}

// Logger receives validation degradations.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Reconciler produces Decisions. It holds configuration only; Reconcile has
// no hidden mutable state.
type Reconciler struct {
	Thresholds  Thresholds
	BoostFactor float64
	Logger      Logger
}

// NewReconciler creates a Reconciler with the given thresholds.
func NewReconciler(thresholds Thresholds) *Reconciler {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &Reconciler{
		Thresholds:  thresholds,
		BoostFactor: DefaultBoostFactor,
	}
}

// Reconcile merges the AI verdict with analyzer scores. Inputs are not modified.
func (r *Reconciler) Reconcile(ctx context.Context, ai *models.AIVerdict, scores map[string]*models.AnalyzerResult, dom DOMValidator) models.Decision {
	if ai == nil {
		ai = models.UnknownVerdict("no AI verdict available")
	}

	// Step 1: drop hallucinated issues, boost confirmed ones.
	issues := r.validateIssues(ctx, ai.Issues, dom)

	// Step 2: confidence from survival ratio and low-confidence density.
	confidence := overallConfidence(ai.Confidence, len(ai.Issues), issues)

	// Step 3: the AI may abstain but may not fail the phase.
	verdict := models.VerdictPass
	if models.ParseVerdict(ai.Verdict) == models.VerdictUnknown {
		verdict = models.VerdictUnknown
	}

	// Step 4: authoritative analyzer thresholds.
	var overrides []models.ThresholdBreach
	var clauses []string
	for _, metric := range r.Thresholds.metrics() {
		res, ok := scores[metric]
		if !ok || res == nil {
			continue
		}
		minimum := r.Thresholds[metric]
		if res.Score >= minimum {
			continue
		}
		breach := models.ThresholdBreach{
			Metric:    metric,
			Score:     res.Score,
			Minimum:   minimum,
			Breakdown: breakdown(res.SubScores, minimum),
		}
		overrides = append(overrides, breach)
		clauses = append(clauses, breachClause(breach))
		// An UNKNOWN base flips too: a measured breach needs no AI opinion
		// to fail the phase.
		if verdict != models.VerdictFail {
			verdict = models.VerdictFail
		}
	}

	// Step 5: reason in fixed order.
	reason := assembleReason(ai.Reason, issues, scores, clauses, verdict)

	return models.Decision{
		Verdict:    verdict,
		Confidence: confidence,
		Reason:     reason,
		Issues:     issues,
		Overrides:  overrides,
	}
}

func (r *Reconciler) validateIssues(ctx context.Context, raw []models.Issue, dom DOMValidator) []models.Issue {
	boost := r.BoostFactor
	if boost <= 0 {
		boost = DefaultBoostFactor
	}

	kept := make([]models.Issue, 0, len(raw))
	for _, issue := range raw {
		sel, ok := ExtractSelector(issue)
		if !ok || dom == nil {
			kept = append(kept, issue)
			continue
		}

		exists, err := dom.ValidateDOM(ctx, sel)
		if err != nil {
			// Unvalidated, keep at original confidence.
			r.debug("dom validation of %q failed: %v", sel, err)
			kept = append(kept, issue)
			continue
		}
		if !exists {
			r.debug("dropping issue %q: %s not found on page", issue.Title, sel)
			continue
		}

		issue.Confidence = clamp01(issue.Confidence * boost)
		kept = append(kept, issue)
	}
	return kept
}

func (r *Reconciler) debug(format string, args ...interface{}) {
	if r.Logger != nil {
		r.Logger.Debugf(format, args...)
	}
}

func overallConfidence(base float64, original int, surviving []models.Issue) float64 {
	ratio := 1.0
	if original > 0 {
		ratio = float64(len(surviving)) / float64(original)
	}
	conf := base * (partialCreditFloor + (1-partialCreditFloor)*ratio)

	low := 0
	for _, issue := range surviving {
		if issue.Confidence < lowConfidenceCutoff {
			low++
		}
	}
	if low > lowConfidenceLimit {
		conf *= lowConfidencePenalty
	}
	return clamp01(conf)
}

// breakdown lists the sub-checks that scored below minimum, lowest first.
// When none individually did, every sub-check is listed.
func breakdown(subs []models.SubScore, minimum float64) []models.SubScore {
	var below []models.SubScore
	for _, s := range subs {
		if s.Score < minimum {
			below = append(below, s)
		}
	}
	if len(below) == 0 {
		below = append(below, subs...)
	}
	sort.SliceStable(below, func(i, j int) bool {
		if below[i].Score == below[j].Score {
			return below[i].Name < below[j].Name
		}
		return below[i].Score < below[j].Score
	})
	return below
}

func breachClause(b models.ThresholdBreach) string {
	clause := fmt.Sprintf("%s score %.1f below minimum %.1f", b.Metric, b.Score, b.Minimum)
	if len(b.Breakdown) == 0 {
		return clause
	}
	parts := make([]string, len(b.Breakdown))
	for i, s := range b.Breakdown {
		parts[i] = fmt.Sprintf("%s: %.1f", s.Name, s.Score)
	}
	return clause + " (" + strings.Join(parts, ", ") + ")"
}

func isLayout(category string) bool {
	return category == models.CategoryLayout || category == models.CategoryRTL
}

func assembleReason(aiReason string, issues []models.Issue, scores map[string]*models.AnalyzerResult, clauses []string, verdict models.Verdict) string {
	var parts []string
	if aiReason = strings.TrimSpace(aiReason); aiReason != "" {
		parts = append(parts, aiReason)
	}

	critical, high, layout, hardcoded := 0, 0, 0, 0
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityHigh:
			high++
		}
		if isLayout(issue.Category) {
			layout++
		}
		if issue.Category == models.CategoryHardcodedText {
			hardcoded++
		}
	}
	for _, res := range scores {
		if res == nil {
			continue
		}
		for _, f := range res.Findings {
			if isLayout(f.Kind) {
				layout++
			}
			if f.Kind == models.CategoryHardcodedText {
				hardcoded++
			}
		}
	}

	if critical > 0 || high > 0 {
		parts = append(parts, fmt.Sprintf("%d critical, %d high issues", critical, high))
	}
	if layout > 0 {
		parts = append(parts, fmt.Sprintf("%d layout findings", layout))
	}
	if hardcoded > 0 {
		parts = append(parts, fmt.Sprintf("%d hardcoded-text findings", hardcoded))
	}
	parts = append(parts, clauses...)
	if verdict == models.VerdictUnknown {
		parts = append(parts, "manual review recommended")
	}

	return strings.Join(parts, "; ")
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
