package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/harrison/phasegate/internal/browser"
	"github.com/harrison/phasegate/internal/models"
)

// CommandAnalyzer runs an external program as an analyzer. The program is
// invoked as `<Path> <Args...> <html-path> <url>` and must print a JSON
// document on stdout:
//
//	{"score": 7.5, "findings": [...], "sub_scores": {"mirroring": 6}}
type CommandAnalyzer struct {
	AnalyzerName string
	Path         string
	Args         []string
}

// NewCommandAnalyzer creates a CommandAnalyzer from a command line.
func NewCommandAnalyzer(name string, command []string) (*CommandAnalyzer, error) {
	if name == "" {
		return nil, fmt.Errorf("analyzer name is required")
	}
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("analyzer %s: command is required", name)
	}
	return &CommandAnalyzer{
		AnalyzerName: name,
		Path:         command[0],
		Args:         append([]string(nil), command[1:]...),
	}, nil
}

// Name returns the analyzer name.
func (c *CommandAnalyzer) Name() string {
	return c.AnalyzerName
}

// commandOutput is the wire format printed by analyzer programs.
type commandOutput struct {
	Score     *float64           `json:"score"`
	Findings  []commandFinding   `json:"findings"`
	SubScores map[string]float64 `json:"sub_scores"`
}

type commandFinding struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Selector string `json:"selector"`
	Severity string `json:"severity"`
}

// Run executes the program against the page's HTML snapshot.
func (c *CommandAnalyzer) Run(ctx context.Context, page browser.Page) (*models.AnalyzerResult, error) {
	if page == nil || page.HTMLPath() == "" {
		return nil, fmt.Errorf("analyzer %s: page has no html snapshot", c.AnalyzerName)
	}

	args := append(append([]string(nil), c.Args...), page.HTMLPath(), page.URL())
	cmd := exec.CommandContext(ctx, c.Path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("analyzer %s: %w: %s", c.AnalyzerName, err, msg)
		}
		return nil, fmt.Errorf("analyzer %s: %w", c.AnalyzerName, err)
	}

	return ParseOutput(c.AnalyzerName, stdout.Bytes())
}

// ParseOutput decodes an analyzer program's JSON output.
func ParseOutput(name string, data []byte) (*models.AnalyzerResult, error) {
	var out commandOutput
	if err := json.Unmarshal(bytes.TrimSpace(data), &out); err != nil {
		return nil, fmt.Errorf("analyzer %s: invalid output: %w", name, err)
	}
	if out.Score == nil {
		return nil, fmt.Errorf("analyzer %s: output has no score", name)
	}

	res := &models.AnalyzerResult{
		Name:  name,
		Score: ClampScore(*out.Score),
	}
	for _, f := range out.Findings {
		res.Findings = append(res.Findings, models.Finding{
			Kind:     f.Kind,
			Message:  f.Message,
			Selector: f.Selector,
			Severity: models.ParseSeverity(f.Severity),
		})
	}

	names := make([]string, 0, len(out.SubScores))
	for n := range out.SubScores {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		res.SubScores = append(res.SubScores, models.SubScore{Name: n, Score: ClampScore(out.SubScores[n])})
	}

	return res, nil
}
