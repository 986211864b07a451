package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: lifecycle requests, queued commands
	PhasePreUpdate               // 1: deliver last tick's events
	PhaseUpdate                  // 2: physics step
	PhaseResolve                 // 3: combat over this step's collisions
	PhasePostUpdate              // 4: timers, match transitions
	PhaseCleanup                 // 5: destroy queued entities
	PhaseOutput                  // 6: publish snapshot, answer callers
	PhasePersist                 // 7: hand results to stats sinks
)

var phaseNames = [...]string{"input", "pre_update", "update", "resolve", "post_update", "cleanup", "output", "persist"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// System is the interface every ECS system implements. An error aborts the
// rest of the tick.
type System interface {
	Phase() Phase
	Update(dt time.Duration) error
}
