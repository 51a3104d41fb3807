package models

import (
	"testing"
)

func navigateStep() Step {
	return Step{Action: ActionNavigate, Target: "/"}
}

func TestPhase_Validate(t *testing.T) {
	tests := []struct {
		name    string
		phase   Phase
		wantErr bool
	}{
		{
			name:  "valid phase",
			phase: Phase{ID: "home", Name: "Home", Steps: []Step{navigateStep()}},
		},
		{
			name:    "missing id",
			phase:   Phase{Name: "Home", Steps: []Step{navigateStep()}},
			wantErr: true,
		},
		{
			name:    "missing name",
			phase:   Phase{ID: "home", Steps: []Step{navigateStep()}},
			wantErr: true,
		},
		{
			name:    "no steps",
			phase:   Phase{ID: "home", Name: "Home"},
			wantErr: true,
		},
		{
			name: "invalid step",
			phase: Phase{ID: "home", Name: "Home", Steps: []Step{
				{Action: ActionClick},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.phase.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStep_Validate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{"navigate with target", Step{Action: ActionNavigate, Target: "/login"}, false},
		{"navigate without target", Step{Action: ActionNavigate}, true},
		{"click with selector", Step{Action: ActionClick, Selector: "#submit"}, false},
		{"hover without selector", Step{Action: ActionHover}, true},
		{"fill without selector", Step{Action: ActionFill, Value: "x"}, true},
		{"press without key", Step{Action: ActionPress}, true},
		{"press with key", Step{Action: ActionPress, Value: "Enter"}, false},
		{"scroll", Step{Action: ActionScroll}, false},
		{"wait with duration", Step{Action: ActionWait, Value: "500ms"}, false},
		{"wait with bad duration", Step{Action: ActionWait, Value: "soon"}, true},
		{"empty action", Step{}, true},
		{"unknown action", Step{Action: "drag"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHasCyclicDependencies(t *testing.T) {
	tests := []struct {
		name   string
		phases []Phase
		want   bool
	}{
		{
			name: "linear chain",
			phases: []Phase{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "c", DependsOn: []string{"b"}},
			},
			want: false,
		},
		{
			name: "two node cycle",
			phases: []Phase{
				{ID: "a", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
			},
			want: true,
		},
		{
			name:   "self reference",
			phases: []Phase{{ID: "a", DependsOn: []string{"a"}}},
			want:   true,
		},
		{
			name: "unknown dependency is not a cycle",
			phases: []Phase{
				{ID: "a", DependsOn: []string{"ghost"}},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasCyclicDependencies(tt.phases); got != tt.want {
				t.Errorf("HasCyclicDependencies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSuite_PhaseIDs(t *testing.T) {
	s := Suite{Phases: []Phase{{ID: "a"}, {ID: "b"}}}
	ids := s.PhaseIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("PhaseIDs() = %v", ids)
	}
}
