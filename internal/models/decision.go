package models

import (
	"strings"
)

// Verdict is the closed tri-state outcome of a phase.
type Verdict string

// Verdict values
const (
	VerdictPass    Verdict = "PASS"
	VerdictFail    Verdict = "FAIL"
	VerdictUnknown Verdict = "UNKNOWN"
)

// ParseVerdict coerces a loosely-typed judgment into a Verdict.
// Anything it does not recognise becomes VerdictUnknown so downstream
// logic never branches on unexpected values.
func ParseVerdict(raw interface{}) Verdict {
	switch v := raw.(type) {
	case Verdict:
		return ParseVerdict(string(v))
	case bool:
		if v {
			return VerdictPass
		}
		return VerdictFail
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "PASS", "PASSED", "GREEN", "OK":
			return VerdictPass
		case "FAIL", "FAILED", "RED":
			return VerdictFail
		}
	}
	return VerdictUnknown
}

// Severity ranks an Issue.
type Severity string

// Severity levels, most severe first
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity normalises a severity string; unknown values map to medium.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker":
		return SeverityCritical
	case "high", "major", "error":
		return SeverityHigh
	case "low", "minor", "info":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Issue categories the reconciler counts separately.
const (
	CategoryLayout        = "layout"
	CategoryRTL           = "rtl"
	CategoryHardcodedText = "hardcoded_text"
	CategoryExecution     = "execution"
)

// Issue is one finding attached to a Decision.
type Issue struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Location    string   `json:"location,omitempty"` // DOM location hint
	Confidence  float64  `json:"confidence"`
}

// SubScore is one sub-check contributing to an analyzer score.
type SubScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ThresholdBreach records an analyzer score that forced a phase to FAIL.
type ThresholdBreach struct {
	Metric    string     `json:"metric"`
	Score     float64    `json:"score"`
	Minimum   float64    `json:"minimum"`
	Breakdown []SubScore `json:"breakdown,omitempty"`
}

// Decision is the reconciled verdict for a phase.
type Decision struct {
	Verdict    Verdict           `json:"verdict"`
	Confidence float64           `json:"confidence"`
	Reason     string            `json:"reason"`
	Issues     []Issue           `json:"issues"`
	Overrides  []ThresholdBreach `json:"overrides,omitempty"`
}

// HasCritical reports whether any issue is critical.
func (d Decision) HasCritical() bool {
	for _, issue := range d.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// CountSeverity returns the number of issues with the given severity.
func (d Decision) CountSeverity(sev Severity) int {
	n := 0
	for _, issue := range d.Issues {
		if issue.Severity == sev {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can hand out decisions without sharing slices.
func (d Decision) Clone() Decision {
	out := d
	if d.Issues != nil {
		out.Issues = append([]Issue(nil), d.Issues...)
	}
	if d.Overrides != nil {
		out.Overrides = make([]ThresholdBreach, len(d.Overrides))
		for i, o := range d.Overrides {
			o.Breakdown = append([]SubScore(nil), o.Breakdown...)
			out.Overrides[i] = o
		}
	}
	return out
}

// AIVerdict is the advisory judgment returned by the vision provider,
// already coerced to typed fields at the boundary.
type AIVerdict struct {
	Verdict    Verdict    `json:"verdict"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`
	Issues     []Issue    `json:"issues"`
	Score      float64    `json:"score"`
	Usage      TokenUsage `json:"usage"`
}

// UnknownVerdict is used when the vision provider produced nothing usable.
func UnknownVerdict(reason string) *AIVerdict {
	return &AIVerdict{Verdict: VerdictUnknown, Reason: reason}
}
