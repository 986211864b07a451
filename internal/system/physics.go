package system

import (
	"time"

	coresys "github.com/arenasim/server/internal/core/system"
	"github.com/arenasim/server/internal/match"
	"github.com/arenasim/server/internal/physics"
	"github.com/arenasim/server/internal/world"
)

// PhysicsSystem steps the physics world while a match is active and copies
// the result back into the components. Phase 2 (Update).
type PhysicsSystem struct {
	reg        *world.Registry
	match      *match.Machine
	collisions []physics.Collision
}

func NewPhysicsSystem(reg *world.Registry, m *match.Machine) *PhysicsSystem {
	return &PhysicsSystem{reg: reg, match: m}
}

func (s *PhysicsSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *PhysicsSystem) Update(dt time.Duration) error {
	s.collisions = nil
	if s.match.Phase() != match.Active {
		return nil
	}
	s.collisions = s.reg.Physics().Step(dt)
	return s.reg.Sync()
}

// Collisions returns the contacts of this tick's step.
func (s *PhysicsSystem) Collisions() []physics.Collision { return s.collisions }
