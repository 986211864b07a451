package world

import (
	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/physics"
)

// Player is a ship controlled by one agent. Eliminated players stay in the
// registry as frozen records until their agent disconnects or the match
// restarts.
// Accessed only from the game loop goroutine; no locks.
type Player struct {
	ID    ecs.EntityID
	Agent string // normalized agent name
	Color int    // palette index

	Position        physics.Vec
	Velocity        physics.Vec
	Heading         float64 // radians
	AngularVelocity float64

	Health    int
	MaxHealth int
	Alive     bool
	Ready     bool

	SpawnProtection int // ticks left; only counts down while the match is active
	ShootCooldown   int // ticks left

	SpawnTick     uint64 // match tick survival time is measured from
	SurvivalTicks uint64 // set once, on elimination
	EliminatedBy  ecs.EntityID

	Shots      int
	Hits       int
	Kills      int
	Collisions int
	Score      int
}

func (p *Player) Protected() bool { return p.SpawnProtection > 0 }

// Projectile is a shot in flight. Spent projectiles wait for cleanup and are
// ignored by combat.
type Projectile struct {
	ID       ecs.EntityID
	Owner    ecs.EntityID
	Position physics.Vec
	Velocity physics.Vec
	Lifetime int // ticks left
	Damage   int
	Color    int // owner's palette index
	Spent    bool
}

type Obstacle struct {
	ID       ecs.EntityID
	Position physics.Vec
	Radius   float64
}

// Boundary is one wall segment of the arena edge.
type Boundary struct {
	ID     ecs.EntityID
	A, B   physics.Vec
	Normal physics.Vec
}

// Body links an entity to its physics body.
type Body struct {
	Handle physics.Handle
	Kind   physics.Kind
}
