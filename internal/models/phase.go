package models

import (
	"errors"
	"fmt"
	"time"
)

// Action identifies the kind of interaction a step performs.
type Action string

// Supported step actions.
const (
	ActionNavigate Action = "navigate"
	ActionClick    Action = "click"
	ActionFill     Action = "fill"
	ActionScroll   Action = "scroll"
	ActionWait     Action = "wait"
	ActionHover    Action = "hover"
	ActionPress    Action = "press"
)

// Step is a single scripted interaction within a phase.
type Step struct {
	Action   Action        `yaml:"action" json:"action"`
	Target   string        `yaml:"target,omitempty" json:"target,omitempty"`     // URL or path for navigate
	Selector string        `yaml:"selector,omitempty" json:"selector,omitempty"` // Element selector for element actions
	Value    string        `yaml:"value,omitempty" json:"value,omitempty"`       // Text for fill, key for press, duration for wait
	Timeout  time.Duration `yaml:"-" json:"timeout,omitempty"`                   // Per-step timeout (0 = configured default)
}

// Validate checks that the step carries the fields its action needs.
func (s Step) Validate() error {
	switch s.Action {
	case ActionNavigate:
		if s.Target == "" {
			return errors.New("navigate step requires a target")
		}
	case ActionClick, ActionHover:
		if s.Selector == "" {
			return fmt.Errorf("%s step requires a selector", s.Action)
		}
	case ActionFill:
		if s.Selector == "" {
			return errors.New("fill step requires a selector")
		}
	case ActionPress:
		if s.Value == "" {
			return errors.New("press step requires a key value")
		}
	case ActionScroll:
	case ActionWait:
		if s.Value != "" {
			if _, err := time.ParseDuration(s.Value); err != nil {
				return fmt.Errorf("wait step has invalid duration %q: %w", s.Value, err)
			}
		}
	case "":
		return errors.New("step action is required")
	default:
		return fmt.Errorf("unknown step action %q", s.Action)
	}
	return nil
}

// Phase is a named unit of scripted interaction plus validation.
// Phases are immutable once a run starts.
type Phase struct {
	ID                string   // Unique identifier referenced by DependsOn
	Name              string   // Human-readable name
	Steps             []Step   // Ordered interaction steps
	DependsOn         []string // Phase IDs that must run first
	ChecklistPatterns []string // Checklist requirement patterns this phase covers
}

// Validate checks if the phase has all required fields
func (p *Phase) Validate() error {
	if p.ID == "" {
		return errors.New("phase id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("phase %s: name is required", p.ID)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("phase %s: at least one step is required", p.ID)
	}
	for i, step := range p.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("phase %s step %d: %w", p.ID, i+1, err)
		}
	}
	return nil
}

// Suite is an ordered collection of phases executed together.
type Suite struct {
	Name      string   // Suite name, also the key for checklist/trend attachments
	BaseURL   string   // Base URL relative navigate targets resolve against
	Devices   []string // Device profiles to run the suite under
	Checklist string   // Optional markdown checklist path
	Phases    []Phase  // Phases in execution order
	FilePath  string   // Original file path
}

// PhaseIDs returns the phase identifiers in suite order.
func (s *Suite) PhaseIDs() []string {
	ids := make([]string, len(s.Phases))
	for i, p := range s.Phases {
		ids[i] = p.ID
	}
	return ids
}

// HasCyclicDependencies detects circular dependencies in a list of phases
// using DFS with color marking (white=unvisited, gray=visiting, black=visited)
func HasCyclicDependencies(phases []Phase) bool {
	graph := make(map[string][]string)
	known := make(map[string]bool)

	for _, phase := range phases {
		known[phase.ID] = true
		graph[phase.ID] = []string{}
	}

	// Edge direction: dependency -> dependent
	for _, phase := range phases {
		for _, dep := range phase.DependsOn {
			if dep == phase.ID {
				return true
			}
			if known[dep] {
				graph[dep] = append(graph[dep], phase.ID)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)

	colors := make(map[string]int, len(known))

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		for _, neighbor := range graph[node] {
			if colors[neighbor] == gray {
				return true
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}
		colors[node] = black
		return false
	}

	for id := range known {
		if colors[id] == white && dfs(id) {
			return true
		}
	}

	return false
}
