package agentsession

// CapabilityProfile is an authorization tier gating API methods.
type CapabilityProfile string

const (
	CapabilityViewer     CapabilityProfile = "VIEWER"
	CapabilityPairWorker CapabilityProfile = "PAIR_WORKER"
	CapabilityMaintainer CapabilityProfile = "MAINTAINER"
	CapabilityPlanner    CapabilityProfile = "PLANNER"
)

// LaunchContext describes the entrypoint an agent session was launched
// from, enough to deterministically resolve its CapabilityProfile.
type LaunchContext struct {
	Writable      bool
	TaskScoped    bool
	PlannerEntry  bool
}

// ResolveCapability derives the agent's capability profile from its
// launch context:
//   - planner entrypoint, unscoped, read-only -> PLANNER
//   - task-scoped, read-only                  -> VIEWER
//   - task-scoped, writable                    -> PAIR_WORKER
//   - anything else read-only                  -> VIEWER
func ResolveCapability(lc LaunchContext) CapabilityProfile {
	switch {
	case lc.PlannerEntry && !lc.TaskScoped && !lc.Writable:
		return CapabilityPlanner
	case lc.TaskScoped && !lc.Writable:
		return CapabilityViewer
	case lc.TaskScoped && lc.Writable:
		return CapabilityPairWorker
	default:
		return CapabilityViewer
	}
}
