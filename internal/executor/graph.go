package executor

import (
	"fmt"

	"github.com/harrison/phasegate/internal/models"
)

// DependencyGraph represents a directed graph of phase dependencies
type DependencyGraph struct {
	Phases   map[string]*models.Phase
	Order    map[string]int      // phase -> position in the suite file
	Edges    map[string][]string // phase -> phases that depend on it (prerequisite -> dependents)
	InDegree map[string]int      // phase -> number of dependencies
}

// Stage is one level of the dependency graph: phases whose dependencies are
// all satisfied by earlier stages. Stages describe the plan; execution stays
// sequential in list order.
type Stage struct {
	Name     string
	PhaseIDs []string
}

// ValidatePhases checks that phase IDs are unique and all dependencies exist
func ValidatePhases(phases []models.Phase) error {
	seen := make(map[string]bool)
	for _, phase := range phases {
		if phase.ID == "" {
			return fmt.Errorf("phase %q has empty id", phase.Name)
		}
		if seen[phase.ID] {
			return fmt.Errorf("phase %s: duplicate phase id", phase.ID)
		}
		seen[phase.ID] = true
	}

	for _, phase := range phases {
		for _, dep := range phase.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("phase %s (%s): depends on non-existent phase %s", phase.ID, phase.Name, dep)
			}
		}
	}

	return nil
}

// BuildDependencyGraph constructs a dependency graph from a list of phases
func BuildDependencyGraph(phases []models.Phase) *DependencyGraph {
	g := &DependencyGraph{
		Phases:   make(map[string]*models.Phase),
		Order:    make(map[string]int),
		Edges:    make(map[string][]string),
		InDegree: make(map[string]int),
	}

	for i := range phases {
		g.Phases[phases[i].ID] = &phases[i]
		g.Order[phases[i].ID] = i
		g.InDegree[phases[i].ID] = 0
	}

	// Unknown dependencies are left to ValidatePhases; at run time they gate
	// the phase to skipped instead.
	for _, phase := range phases {
		for _, dep := range phase.DependsOn {
			if _, exists := g.Phases[dep]; !exists {
				continue
			}
			g.Edges[dep] = append(g.Edges[dep], phase.ID)
			g.InDegree[phase.ID]++
		}
	}

	return g
}

// HasCycle detects if the graph contains a cycle using DFS with color marking
func (g *DependencyGraph) HasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	colors := make(map[string]int)
	for id := range g.Phases {
		colors[id] = white
	}

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray

		for _, neighbor := range g.Edges[node] {
			if colors[neighbor] == gray {
				return true // back edge
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}

		colors[node] = black
		return false
	}

	for id, phase := range g.Phases {
		for _, dep := range phase.DependsOn {
			if dep == id {
				return true
			}
		}
	}

	for id := range g.Phases {
		if colors[id] == white && dfs(id) {
			return true
		}
	}

	return false
}

// ForwardDependencies lists dependencies that appear later in the suite than
// the phase itself. Such phases will always be skipped at run time because
// the dependency has not executed yet when the phase is reached.
func (g *DependencyGraph) ForwardDependencies() map[string][]string {
	forward := make(map[string][]string)
	for id, phase := range g.Phases {
		for _, dep := range phase.DependsOn {
			if pos, ok := g.Order[dep]; ok && pos > g.Order[id] {
				forward[id] = append(forward[id], dep)
			}
		}
	}
	return forward
}

// CalculateStages groups phases by dependency depth using Kahn's algorithm.
// Phases with no dependencies go in Stage 1, phases depending only on
// Stage 1 go in Stage 2, and so on. Within a stage, suite order is kept.
func CalculateStages(phases []models.Phase) ([]Stage, error) {
	if err := ValidatePhases(phases); err != nil {
		return nil, err
	}

	if len(phases) == 0 {
		return []Stage{}, nil
	}

	graph := BuildDependencyGraph(phases)
	if graph.HasCycle() {
		return nil, fmt.Errorf("circular dependency detected")
	}

	var stages []Stage
	inDegree := make(map[string]int)
	for k, v := range graph.InDegree {
		inDegree[k] = v
	}

	for len(inDegree) > 0 {
		var current []string
		for _, phase := range phases {
			if degree, ok := inDegree[phase.ID]; ok && degree == 0 {
				current = append(current, phase.ID)
			}
		}

		if len(current) == 0 {
			return nil, fmt.Errorf("graph error: no phases with zero in-degree")
		}

		stages = append(stages, Stage{
			Name:     fmt.Sprintf("Stage %d", len(stages)+1),
			PhaseIDs: current,
		})

		for _, id := range current {
			delete(inDegree, id)
			for _, dependent := range graph.Edges[id] {
				if _, exists := inDegree[dependent]; exists {
					inDegree[dependent]--
				}
			}
		}
	}

	return stages, nil
}
