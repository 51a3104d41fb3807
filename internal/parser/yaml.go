package parser

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/phasegate/internal/models"
)

// YAMLParser parses YAML suite files
type YAMLParser struct{}

// NewYAMLParser creates a new YAML parser
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

type yamlSuite struct {
	Name      string      `yaml:"name"`
	BaseURL   string      `yaml:"base_url"`
	Devices   []string    `yaml:"devices"`
	Checklist string      `yaml:"checklist"`
	Phases    []yamlPhase `yaml:"phases"`
}

type yamlPhase struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	DependsOn []string   `yaml:"depends_on"`
	Checklist []string   `yaml:"checklist"`
	Steps     []yamlStep `yaml:"steps"`
}

type yamlStep struct {
	Action   string `yaml:"action"`
	Target   string `yaml:"target"`
	Selector string `yaml:"selector"`
	Value    string `yaml:"value"`
	Timeout  string `yaml:"timeout"`
}

// Parse decodes a suite document, converts it to models.Suite and validates it.
// Unknown keys are rejected so typos surface instead of being ignored.
func (p *YAMLParser) Parse(r io.Reader) (*models.Suite, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc yamlSuite
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty suite document")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	s := &models.Suite{
		Name:      strings.TrimSpace(doc.Name),
		BaseURL:   strings.TrimSpace(doc.BaseURL),
		Checklist: strings.TrimSpace(doc.Checklist),
		Devices:   normalizeDevices(doc.Devices),
		Phases:    make([]models.Phase, 0, len(doc.Phases)),
	}

	for i, yp := range doc.Phases {
		phase, err := convertPhase(yp)
		if err != nil {
			return nil, fmt.Errorf("phase %d: %w", i+1, err)
		}
		s.Phases = append(s.Phases, phase)
	}

	if err := ValidateSuite(s); err != nil {
		return nil, err
	}
	return s, nil
}

func convertPhase(yp yamlPhase) (models.Phase, error) {
	phase := models.Phase{
		ID:                strings.TrimSpace(yp.ID),
		Name:              strings.TrimSpace(yp.Name),
		DependsOn:         yp.DependsOn,
		ChecklistPatterns: yp.Checklist,
		Steps:             make([]models.Step, 0, len(yp.Steps)),
	}
	for i, ys := range yp.Steps {
		step := models.Step{
			Action:   models.Action(strings.ToLower(strings.TrimSpace(ys.Action))),
			Target:   ys.Target,
			Selector: ys.Selector,
			Value:    ys.Value,
		}
		if ys.Timeout != "" {
			d, err := time.ParseDuration(ys.Timeout)
			if err != nil {
				return phase, fmt.Errorf("step %d: invalid timeout %q: %w", i+1, ys.Timeout, err)
			}
			if d < 0 {
				return phase, fmt.Errorf("step %d: timeout must not be negative", i+1)
			}
			step.Timeout = d
		}
		phase.Steps = append(phase.Steps, step)
	}
	return phase, nil
}

func normalizeDevices(devices []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, d := range devices {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
