package models

import "time"

// PhaseStatus is the final status of a phase execution.
type PhaseStatus string

// Phase status constants
const (
	StatusPassed  PhaseStatus = "passed"
	StatusFailed  PhaseStatus = "failed"
	StatusUnknown PhaseStatus = "unknown"
	StatusSkipped PhaseStatus = "skipped"
)

// StatusForVerdict maps a reconciled verdict onto a phase status.
func StatusForVerdict(v Verdict) PhaseStatus {
	switch v {
	case VerdictPass:
		return StatusPassed
	case VerdictFail:
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// TokenUsage counts AI tokens consumed.
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// Add returns the sum of two usages. Total is derived when unset.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	sum := TokenUsage{
		Input:  u.Input + o.Input,
		Output: u.Output + o.Output,
		Total:  u.totalOrSum() + o.totalOrSum(),
	}
	return sum
}

func (u TokenUsage) totalOrSum() int64 {
	if u.Total > 0 {
		return u.Total
	}
	return u.Input + u.Output
}

// Finding is a structured observation produced by an analyzer.
type Finding struct {
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Selector string   `json:"selector,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

// AnalyzerResult is the bounded, named output of one analyzer capability.
type AnalyzerResult struct {
	Name      string        `json:"name"`
	Score     float64       `json:"score"` // 0..10
	Findings  []Finding     `json:"findings,omitempty"`
	SubScores []SubScore    `json:"sub_scores,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// PhaseResult is the outcome of executing one phase.
type PhaseResult struct {
	Phase          Phase                      `json:"-"`
	PhaseID        string                     `json:"phase_id"`
	PhaseName      string                     `json:"phase_name"`
	Status         PhaseStatus                `json:"status"`
	Duration       time.Duration              `json:"duration"`
	Decision       Decision                   `json:"decision"`
	Analyzers      map[string]*AnalyzerResult `json:"analyzers,omitempty"` // missing key: analyzer did not produce a result
	Error          string                     `json:"error,omitempty"`     // execution error, empty for quality outcomes
	Attempts       int                        `json:"attempts"`
	Usage          TokenUsage                 `json:"usage"`
	ScreenshotPath string                     `json:"screenshot_path,omitempty"`
	HTMLPath       string                     `json:"html_path,omitempty"`
}

// HasExecutionError reports whether the phase carries an execution error.
func (r PhaseResult) HasExecutionError() bool {
	return r.Error != ""
}

// SuiteStatus is the rolled-up status of a suite run.
type SuiteStatus string

// Suite status constants
const (
	SuitePassed  SuiteStatus = "passed"
	SuiteFailed  SuiteStatus = "failed"
	SuitePartial SuiteStatus = "partial"
)

// StatusCounts breaks phases down by status.
type StatusCounts struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Unknown int `json:"unknown"`
	Skipped int `json:"skipped"`
}

// SuiteResult aggregates all phase results of one suite run.
type SuiteResult struct {
	RunID      string        `json:"run_id"`
	Name       string        `json:"name"`
	Device     string        `json:"device,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Phases     []PhaseResult `json:"phases"`
	Counts     StatusCounts  `json:"counts"`
	Status     SuiteStatus   `json:"status"`
	Usage      TokenUsage    `json:"usage"`
	CostUSD    float64       `json:"cost_usd"`
	Summary    string        `json:"summary"`
	Checklist  interface{}   `json:"checklist,omitempty"` // opaque coverage attachment
	Trend      interface{}   `json:"trend,omitempty"`     // opaque trend attachment
}

// Duration returns the wall-clock time of the run.
func (s *SuiteResult) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// ExitCode implements the process exit contract: 0 only when the suite passed.
func ExitCode(status SuiteStatus) int {
	if status == SuitePassed {
		return 0
	}
	return 1
}
