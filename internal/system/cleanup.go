package system

import (
	"time"

	coresys "github.com/arenasim/server/internal/core/system"
	"github.com/arenasim/server/internal/world"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end
// and cross-checks the registry against physics. Phase 5 (Cleanup).
type CleanupSystem struct {
	reg *world.Registry
}

func NewCleanupSystem(reg *world.Registry) *CleanupSystem {
	return &CleanupSystem{reg: reg}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) error {
	if err := s.reg.ECS().FlushDestroyQueue(); err != nil {
		return err
	}
	return s.reg.Verify()
}
