package parser

import (
	"fmt"
	"regexp"

	"github.com/harrison/phasegate/internal/models"
)

// ValidateSuite checks that a suite can be executed: at least one phase,
// every phase valid, unique IDs, known dependencies, no cycles and
// compilable checklist patterns.
func ValidateSuite(s *models.Suite) error {
	if len(s.Phases) == 0 {
		return fmt.Errorf("suite %q has no phases", s.Name)
	}

	ids := make(map[string]bool, len(s.Phases))
	for i := range s.Phases {
		p := &s.Phases[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate phase id: %s", p.ID)
		}
		ids[p.ID] = true
	}

	for _, p := range s.Phases {
		if err := ValidateDependencies(p, ids); err != nil {
			return err
		}
		for _, pattern := range p.ChecklistPatterns {
			if _, err := regexp.Compile("(?i)" + pattern); err != nil {
				return fmt.Errorf("phase %s: invalid checklist pattern %q: %w", p.ID, pattern, err)
			}
		}
	}

	if models.HasCyclicDependencies(s.Phases) {
		return fmt.Errorf("suite %q: circular dependency detected", s.Name)
	}
	return nil
}

// ValidateDependencies checks that every dependency of p names a known phase.
func ValidateDependencies(p models.Phase, known map[string]bool) error {
	for _, dep := range p.DependsOn {
		if dep == p.ID {
			return fmt.Errorf("phase %s depends on itself", p.ID)
		}
		if !known[dep] {
			return fmt.Errorf("phase %s depends on unknown phase %s", p.ID, dep)
		}
	}
	return nil
}
