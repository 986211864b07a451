package world

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/arenasim/server/internal/config"
	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/data"
	"github.com/arenasim/server/internal/physics"
	"go.uber.org/zap"
)

// Registry owns every live game object and mediates all creation and removal.
// Every entity it creates has a physics body before Create returns; removal
// detaches the body before the components are dropped.
// Accessed only from the game loop goroutine; no locks.
type Registry struct {
	ecs   *ecs.World
	phys  *physics.World
	arena *data.Arena
	cfg   *config.Config
	rng   *rand.Rand
	log   *zap.Logger

	players     *ecs.PtrComponentStore[Player]
	projectiles *ecs.PtrComponentStore[Projectile]
	obstacles   *ecs.PtrComponentStore[Obstacle]
	boundaries  *ecs.PtrComponentStore[Boundary]
	bodies      *ecs.PtrComponentStore[Body]
	owners      map[physics.Handle]ecs.EntityID

	protectionTicks int
	lifetimeTicks   int
}

// NewRegistry builds the static world (boundaries, then obstacles) and
// returns an empty registry around it.
func NewRegistry(cfg *config.Config, phys *physics.World, arena *data.Arena, rng *rand.Rand, log *zap.Logger) (*Registry, error) {
	r := &Registry{
		ecs:             ecs.NewWorld(),
		phys:            phys,
		arena:           arena,
		cfg:             cfg,
		rng:             rng,
		log:             log,
		players:         ecs.NewPtrComponentStore[Player](),
		projectiles:     ecs.NewPtrComponentStore[Projectile](),
		obstacles:       ecs.NewPtrComponentStore[Obstacle](),
		boundaries:      ecs.NewPtrComponentStore[Boundary](),
		bodies:          ecs.NewPtrComponentStore[Body](),
		owners:          make(map[physics.Handle]ecs.EntityID, 64),
		protectionTicks: cfg.Tick.Ticks(cfg.Player.SpawnProtection),
		lifetimeTicks:   cfg.Tick.Ticks(cfg.Projectile.Lifetime),
	}
	reg := r.ecs.Registry()
	reg.Register(r.players)
	reg.Register(r.projectiles)
	reg.Register(r.obstacles)
	reg.Register(r.boundaries)
	reg.Register(r.bodies)
	r.ecs.OnBeforeDestroy(r.detach)

	for _, wall := range physics.ArenaWalls(arena.Width, arena.Height) {
		id, err := r.attach(physics.KindBoundary, wall, physics.BodyState{
			Static:     true,
			Elasticity: cfg.Physics.BoundaryElasticity,
		})
		if err != nil {
			return nil, fmt.Errorf("add boundary: %w", err)
		}
		r.boundaries.Set(id, &Boundary{ID: id, A: wall.A, B: wall.B, Normal: wall.Normal})
	}
	for i, o := range arena.Obstacles {
		pos := physics.V(o.X, o.Y)
		id, err := r.attach(physics.KindObstacle, physics.Circle(o.Radius), physics.BodyState{
			Position:   pos,
			Static:     true,
			Elasticity: cfg.Physics.ObstacleElasticity,
		})
		if err != nil {
			return nil, fmt.Errorf("add obstacle %d: %w", i, err)
		}
		r.obstacles.Set(id, &Obstacle{ID: id, Position: pos, Radius: o.Radius})
	}
	return r, nil
}

// ECS exposes the underlying entity world for the cleanup system.
func (r *Registry) ECS() *ecs.World        { return r.ecs }
func (r *Registry) Arena() *data.Arena     { return r.arena }
func (r *Registry) Physics() *physics.World { return r.phys }

// Generation is the restart generation stamped on new ids.
func (r *Registry) Generation() uint32 { return r.ecs.Pool().Generation() }

// AdvanceGeneration starts a new restart generation.
func (r *Registry) AdvanceGeneration() uint32 { return r.ecs.Pool().AdvanceGeneration() }

// CreatePlayer spawns a full-health player for agent at a free position.
func (r *Registry) CreatePlayer(agent string, color int) (*Player, error) {
	pos := r.spawnPoint()
	id, err := r.attach(physics.KindPlayer, physics.Circle(r.cfg.Player.Radius), physics.BodyState{
		Position:   pos,
		Mass:       r.cfg.Player.Mass,
		Elasticity: r.cfg.Physics.PlayerElasticity,
		MaxSpeed:   r.cfg.Player.MaxSpeed,
	})
	if err != nil {
		return nil, fmt.Errorf("create player %q: %w", agent, err)
	}
	p := &Player{
		ID:              id,
		Agent:           agent,
		Color:           color,
		Position:        pos,
		Health:          r.cfg.Player.MaxHealth,
		MaxHealth:       r.cfg.Player.MaxHealth,
		Alive:           true,
		SpawnProtection: r.protectionTicks,
	}
	r.players.Set(id, p)
	return p, nil
}

// MuzzleState is the spawn state of a projectile fired by p: just ahead of the
// hull along the heading, moving at projectile speed.
func (r *Registry) MuzzleState(p *Player) physics.BodyState {
	dir := physics.FromAngle(p.Heading)
	offset := r.cfg.Player.Radius + r.cfg.Projectile.Radius + 1
	return physics.BodyState{
		Position: p.Position.Add(dir.Scale(offset)),
		Velocity: dir.Scale(r.cfg.Projectile.Speed),
		Angle:    p.Heading,
		Mass:     1,
		Sensor:   true,
	}
}

// CreateProjectile spawns a projectile owned by owner.
func (r *Registry) CreateProjectile(owner ecs.EntityID, spawn physics.BodyState) (*Projectile, error) {
	shooter, err := r.Player(owner)
	if err != nil {
		return nil, err
	}
	spawn.Sensor = true
	if spawn.Mass <= 0 {
		spawn.Mass = 1
	}
	id, err := r.attach(physics.KindProjectile, physics.Circle(r.cfg.Projectile.Radius), spawn)
	if err != nil {
		return nil, fmt.Errorf("create projectile: %w", err)
	}
	pr := &Projectile{
		ID:       id,
		Owner:    owner,
		Position: spawn.Position,
		Velocity: spawn.Velocity,
		Lifetime: r.lifetimeTicks,
		Damage:   r.cfg.Projectile.Damage,
		Color:    shooter.Color,
	}
	r.projectiles.Set(id, pr)
	return pr, nil
}

// Remove destroys an entity now: physics body first, then components.
func (r *Registry) Remove(id ecs.EntityID) error {
	if !r.ecs.Alive(id) {
		return r.missing(id)
	}
	return r.ecs.Destroy(id)
}

// MarkForRemoval defers destruction to the cleanup phase.
func (r *Registry) MarkForRemoval(id ecs.EntityID) {
	if pr, ok := r.projectiles.Get(id); ok {
		pr.Spent = true
	}
	r.ecs.MarkForDestruction(id)
}

func (r *Registry) Player(id ecs.EntityID) (*Player, error) {
	if p, ok := r.players.Get(id); ok {
		return p, nil
	}
	return nil, r.missing(id)
}

func (r *Registry) Projectile(id ecs.EntityID) (*Projectile, error) {
	if pr, ok := r.projectiles.Get(id); ok {
		return pr, nil
	}
	return nil, r.missing(id)
}

func (r *Registry) Obstacle(id ecs.EntityID) (*Obstacle, bool) { return r.obstacles.Get(id) }

// Players lists players in ascending id order.
func (r *Registry) Players() []*Player { return list(r.players) }

// Projectiles lists projectiles in ascending id order.
func (r *Registry) Projectiles() []*Projectile { return list(r.projectiles) }

func (r *Registry) Obstacles() []*Obstacle   { return list(r.obstacles) }
func (r *Registry) Boundaries() []*Boundary { return list(r.boundaries) }

// Count reports the live entities of one kind.
func (r *Registry) Count(kind physics.Kind) int {
	switch kind {
	case physics.KindPlayer:
		return r.players.Len()
	case physics.KindProjectile:
		return r.projectiles.Len()
	case physics.KindObstacle:
		return r.obstacles.Len()
	case physics.KindBoundary:
		return r.boundaries.Len()
	}
	return 0
}

// EntityOf maps a physics handle back to its entity.
func (r *Registry) EntityOf(h physics.Handle) (ecs.EntityID, physics.Kind, error) {
	id, ok := r.owners[h]
	if !ok {
		return 0, 0, fmt.Errorf("%w: physics body %d has no entity", ErrInvariant, h)
	}
	b, _ := r.bodies.Get(id)
	return id, b.Kind, nil
}

// BodyOf returns the physics handle backing id.
func (r *Registry) BodyOf(id ecs.EntityID) (physics.Handle, error) {
	b, ok := r.bodies.Get(id)
	if !ok {
		return 0, r.missing(id)
	}
	return b.Handle, nil
}

// Sync copies body state from physics into the player and projectile
// components. Called after every physics step.
func (r *Registry) Sync() error {
	var err error
	ecs.Each2(r.players, r.bodies, func(id ecs.EntityID, p *Player, b *Body) {
		if err != nil {
			return
		}
		var st physics.BodyState
		if st, err = r.state(id, b); err == nil {
			p.Position, p.Velocity = st.Position, st.Velocity
			p.Heading, p.AngularVelocity = st.Angle, st.AngularVelocity
		}
	})
	if err != nil {
		return err
	}
	ecs.Each2(r.projectiles, r.bodies, func(id ecs.EntityID, pr *Projectile, b *Body) {
		if err != nil {
			return
		}
		var st physics.BodyState
		if st, err = r.state(id, b); err == nil {
			pr.Position, pr.Velocity = st.Position, st.Velocity
		}
	})
	return err
}

// Thrust pushes p along its heading (sign +1) or against it (sign -1) by the
// configured velocity change, spread over one step of length dt.
func (r *Registry) Thrust(p *Player, sign float64, dt time.Duration) error {
	h, err := r.BodyOf(p.ID)
	if err != nil {
		return err
	}
	dv := physics.FromAngle(p.Heading).Scale(sign * r.cfg.Player.Thrust)
	return r.invariant(r.phys.ApplyForce(h, dv.Scale(r.cfg.Player.Mass/dt.Seconds())))
}

// Turn changes p's angular velocity by the configured rotation, clockwise on
// screen for sign +1.
func (r *Registry) Turn(p *Player, sign float64, dt time.Duration) error {
	h, err := r.BodyOf(p.ID)
	if err != nil {
		return err
	}
	inertia := physics.MomentForCircle(r.cfg.Player.Mass, r.cfg.Player.Radius)
	return r.invariant(r.phys.ApplyTorque(h, sign*r.cfg.Player.Rotation*inertia/dt.Seconds()))
}

// Eliminate freezes p in place. Health is left to the caller.
func (r *Registry) Eliminate(p *Player, killer ecs.EntityID, tick uint64) error {
	h, err := r.BodyOf(p.ID)
	if err != nil {
		return err
	}
	if err := r.phys.SetStatic(h, true); err != nil {
		return r.invariant(err)
	}
	p.Alive = false
	p.Velocity = physics.Vec{}
	p.AngularVelocity = 0
	p.EliminatedBy = killer
	if tick > p.SpawnTick {
		p.SurvivalTicks = tick - p.SpawnTick
	}
	return nil
}

// Verify cross-checks registry membership against the physics world.
func (r *Registry) Verify() error {
	total := r.players.Len() + r.projectiles.Len() + r.obstacles.Len() + r.boundaries.Len()
	if r.bodies.Len() != total || r.phys.Len() != total || len(r.owners) != total {
		return fmt.Errorf("%w: %d entities, %d body links, %d physics bodies, %d owners",
			ErrInvariant, total, r.bodies.Len(), r.phys.Len(), len(r.owners))
	}
	var err error
	r.bodies.Each(func(id ecs.EntityID, b *Body) {
		if err == nil && !r.phys.Has(b.Handle) {
			err = fmt.Errorf("%w: entity %v holds dead body %d", ErrInvariant, id, b.Handle)
		}
	})
	return err
}

func (r *Registry) attach(kind physics.Kind, shape physics.Shape, st physics.BodyState) (ecs.EntityID, error) {
	h, err := r.phys.AddBody(kind, shape, st)
	if err != nil {
		return 0, err
	}
	if _, dup := r.owners[h]; dup {
		return 0, fmt.Errorf("%w: physics handle %d assigned twice", ErrInvariant, h)
	}
	id := r.ecs.CreateEntity()
	r.bodies.Set(id, &Body{Handle: h, Kind: kind})
	r.owners[h] = id
	return id, nil
}

// detach runs before components are dropped.
func (r *Registry) detach(id ecs.EntityID) error {
	b, ok := r.bodies.Get(id)
	if !ok {
		return fmt.Errorf("%w: entity %v has no body", ErrInvariant, id)
	}
	if err := r.phys.RemoveBody(b.Handle); err != nil {
		return r.invariant(err)
	}
	delete(r.owners, b.Handle)
	return nil
}

func (r *Registry) state(id ecs.EntityID, b *Body) (physics.BodyState, error) {
	st, err := r.phys.State(b.Handle)
	if err != nil {
		return st, fmt.Errorf("%w: entity %v: %v", ErrInvariant, id, err)
	}
	return st, nil
}

func (r *Registry) missing(id ecs.EntityID) error {
	if id.Generation() != r.Generation() {
		return fmt.Errorf("%w: %v", ErrStaleGeneration, id)
	}
	return fmt.Errorf("%w: %v", ErrNotFound, id)
}

// invariant upgrades a physics lookup failure on a live entity.
func (r *Registry) invariant(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvariant, err)
}

// spawnPoint tries the arena centre, then random positions, and settles for
// the roomiest candidate when none is clear.
func (r *Registry) spawnPoint() physics.Vec {
	radius := r.cfg.Player.Radius
	pad := 2 * radius
	best := physics.V(r.arena.Width/2, r.arena.Height/2)
	bestRoom := r.clearance(best)
	if bestRoom >= radius {
		return best
	}
	for i := 0; i < r.cfg.Player.SpawnAttempts; i++ {
		cand := physics.V(
			pad+r.rng.Float64()*(r.arena.Width-2*pad),
			pad+r.rng.Float64()*(r.arena.Height-2*pad),
		)
		room := r.clearance(cand)
		if room >= radius {
			return cand
		}
		if room > bestRoom {
			best, bestRoom = cand, room
		}
	}
	r.log.Warn("no clear spawn point, using the roomiest candidate",
		zap.Float64("x", best.X), zap.Float64("y", best.Y))
	return best
}

// clearance is the distance from p to the nearest player or obstacle surface.
func (r *Registry) clearance(p physics.Vec) float64 {
	room := math.Inf(1)
	r.obstacles.Each(func(_ ecs.EntityID, o *Obstacle) {
		room = math.Min(room, p.Dist(o.Position)-o.Radius)
	})
	r.players.Each(func(_ ecs.EntityID, pl *Player) {
		room = math.Min(room, p.Dist(pl.Position)-r.cfg.Player.Radius)
	})
	return room
}

func list[T any](s *ecs.PtrComponentStore[T]) []*T {
	out := make([]*T, 0, s.Len())
	s.Each(func(_ ecs.EntityID, c *T) { out = append(out, c) })
	return out
}
