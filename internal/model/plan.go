package model

// PlanStep is one named unit of an InstallPlan.
type PlanStep struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DryRun      bool   `json:"dry_run"`
}

// InstallPlan is the ordered list of steps an invocation will attempt.
// It is built once and not modified afterwards.
type InstallPlan struct {
	Command string     `json:"command"`
	Target  string     `json:"target,omitempty"`
	DryRun  bool       `json:"dry_run"`
	Steps   []PlanStep `json:"steps"`
}

// StepNames returns the step names in plan order.
func (p *InstallPlan) StepNames() []string {
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	return names
}
