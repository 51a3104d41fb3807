// Package vision is the boundary to the AI vision-analysis service. The
// engine never talks to a model directly; it calls a Provider and receives
// an advisory, already-typed AIVerdict.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harrison/phasegate/internal/models"
)

// PhaseContext describes the phase being judged.
type PhaseContext struct {
	SuiteName string   `json:"suite"`
	PhaseID   string   `json:"phase_id"`
	PhaseName string   `json:"phase_name"`
	URL       string   `json:"url"`
	HTMLPath  string   `json:"html_path,omitempty"`
	Device    string   `json:"device,omitempty"`
	Checklist []string `json:"checklist,omitempty"`
}

// Provider produces an advisory judgment for a captured screenshot.
type Provider interface {
	Analyze(ctx context.Context, screenshotPath string, pc PhaseContext) (*models.AIVerdict, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, screenshotPath string, pc PhaseContext) (*models.AIVerdict, error)

// Analyze calls f.
func (f ProviderFunc) Analyze(ctx context.Context, screenshotPath string, pc PhaseContext) (*models.AIVerdict, error) {
	return f(ctx, screenshotPath, pc)
}

// Disabled is a Provider that always abstains.
type Disabled struct{}

// Analyze returns an UNKNOWN verdict.
func (Disabled) Analyze(ctx context.Context, screenshotPath string, pc PhaseContext) (*models.AIVerdict, error) {
	return models.UnknownVerdict("vision analysis disabled"), nil
}

// CommandProvider invokes an external program that wraps the vision model.
// The phase context is written to stdin as JSON and the program is given
// the screenshot path as its last argument.
type CommandProvider struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// NewCommandProvider creates a CommandProvider from a command line.
func NewCommandProvider(command []string, timeout time.Duration) (*CommandProvider, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("vision command is required")
	}
	return &CommandProvider{
		Path:    command[0],
		Args:    append([]string(nil), command[1:]...),
		Timeout: timeout,
	}, nil
}

// Analyze runs the program and parses its response.
func (p *CommandProvider) Analyze(ctx context.Context, screenshotPath string, pc PhaseContext) (*models.AIVerdict, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	input, err := json.Marshal(pc)
	if err != nil {
		return nil, fmt.Errorf("marshal phase context: %w", err)
	}

	args := append(append([]string(nil), p.Args...), screenshotPath)
	cmd := exec.CommandContext(ctx, p.Path, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("vision command failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("vision command failed: %w", err)
	}

	return ParseResponse(stdout.Bytes())
}

// rawResponse mirrors the loosely-structured provider output.
type rawResponse struct {
	Verdict    interface{} `json:"verdict"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason"`
	Score      float64     `json:"score"`
	Issues     []rawIssue  `json:"issues"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
		TotalTokens  int64 `json:"total_tokens"`
	} `json:"usage"`
}

type rawIssue struct {
	Severity    string   `json:"severity"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion"`
	Location    string   `json:"location"`
	Confidence  *float64 `json:"confidence"`
}

// ParseResponse decodes a provider response, coercing the verdict into the
// closed tri-state and clamping confidences to [0,1]. Issues with no stated
// confidence inherit the response confidence.
func ParseResponse(data []byte) (*models.AIVerdict, error) {
	var raw rawResponse
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, fmt.Errorf("parse vision response: %w", err)
	}

	v := &models.AIVerdict{
		Verdict:    models.ParseVerdict(raw.Verdict),
		Confidence: clamp01(raw.Confidence),
		Reason:     strings.TrimSpace(raw.Reason),
		Score:      raw.Score,
		Usage: models.TokenUsage{
			Input:  raw.Usage.InputTokens,
			Output: raw.Usage.OutputTokens,
			Total:  raw.Usage.TotalTokens,
		},
	}
	if v.Usage.Total == 0 {
		v.Usage.Total = v.Usage.Input + v.Usage.Output
	}

	for _, ri := range raw.Issues {
		conf := v.Confidence
		if ri.Confidence != nil {
			conf = clamp01(*ri.Confidence)
		}
		v.Issues = append(v.Issues, models.Issue{
			Severity:    models.ParseSeverity(ri.Severity),
			Category:    strings.ToLower(strings.TrimSpace(ri.Category)),
			Title:       ri.Title,
			Description: ri.Description,
			Suggestion:  ri.Suggestion,
			Location:    ri.Location,
			Confidence:  conf,
		})
	}

	return v, nil
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
