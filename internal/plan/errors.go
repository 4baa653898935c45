package plan

import "fmt"

// PlanError reports an unknown (target, profile) pair. It is raised before
// any build work starts.
type PlanError struct {
	Target  string
	Profile string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("no build plan for target %q profile %q", e.Target, e.Profile)
}
