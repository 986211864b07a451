package system

import (
	"fmt"
	"sort"
	"time"

	"github.com/arenasim/server/internal/config"
	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/core/event"
	coresys "github.com/arenasim/server/internal/core/system"
	"github.com/arenasim/server/internal/match"
	"github.com/arenasim/server/internal/physics"
	"github.com/arenasim/server/internal/scripting"
	"github.com/arenasim/server/internal/world"
	"go.uber.org/zap"
)

// CollisionSource yields the contacts of the current tick.
type CollisionSource interface {
	Collisions() []physics.Collision
}

// CombatSystem turns the physics contacts of a step into game effects:
// damage, elimination, projectile expiry and collision penalties.
// Phase 3 (Resolve).
type CombatSystem struct {
	reg    *world.Registry
	match  *match.Machine
	source CollisionSource
	bus    *event.Bus
	rules  scripting.Rules
	log    *zap.Logger

	rate         int
	friendlyFire bool
	bumpSpeed    float64 // slower player contacts are not counted
}

func NewCombatSystem(reg *world.Registry, m *match.Machine, source CollisionSource, bus *event.Bus, rules scripting.Rules, cfg *config.Config, log *zap.Logger) *CombatSystem {
	return &CombatSystem{
		reg:          reg,
		match:        m,
		source:       source,
		bus:          bus,
		rules:        rules,
		log:          log,
		rate:         cfg.Tick.Rate,
		friendlyFire: cfg.Projectile.FriendlyFire,
		bumpSpeed:    cfg.Player.CollisionSpeedRatio * cfg.Player.MaxSpeed,
	}
}

func (s *CombatSystem) Phase() coresys.Phase { return coresys.PhaseResolve }

// contact is one side of a collision seen from a projectile or player.
type contact struct {
	self  ecs.EntityID
	other ecs.EntityID
	kind  physics.Kind
	speed float64
}

func (s *CombatSystem) Update(_ time.Duration) error {
	if s.match.Phase() != match.Active {
		return nil
	}

	shots := make(map[ecs.EntityID][]contact)
	var bumps []contact
	for _, c := range s.source.Collisions() {
		a, ka, err := s.reg.EntityOf(c.A)
		if err != nil {
			return err
		}
		b, kb, err := s.reg.EntityOf(c.B)
		if err != nil {
			return err
		}
		switch {
		case ka == physics.KindProjectile:
			shots[a] = append(shots[a], contact{self: a, other: b, kind: kb})
		case kb == physics.KindProjectile:
			shots[b] = append(shots[b], contact{self: b, other: a, kind: ka})
		case ka == physics.KindPlayer && kb == physics.KindPlayer:
			bumps = append(bumps,
				contact{self: a, other: b, kind: kb, speed: c.Speed},
				contact{self: b, other: a, kind: ka, speed: c.Speed})
		case ka == physics.KindPlayer && kb == physics.KindObstacle:
			bumps = append(bumps, contact{self: a, other: b, kind: kb, speed: c.Speed})
		case kb == physics.KindPlayer && ka == physics.KindObstacle:
			bumps = append(bumps, contact{self: b, other: a, kind: ka, speed: c.Speed})
		}
	}

	ids := make([]ecs.EntityID, 0, len(shots))
	for id := range shots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := s.resolveProjectile(id, shots[id]); err != nil {
			return err
		}
	}

	for _, b := range bumps {
		s.resolveBump(b)
	}
	s.expire()
	return nil
}

// resolveProjectile applies the first contact that stops the projectile.
// Targets are tried in ascending id order.
func (s *CombatSystem) resolveProjectile(id ecs.EntityID, contacts []contact) error {
	pr, err := s.reg.Projectile(id)
	if err != nil {
		return fmt.Errorf("%w: projectile %v in a collision is gone: %v", world.ErrInvariant, id, err)
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].other < contacts[j].other })

	for _, c := range contacts {
		if pr.Spent {
			return nil
		}
		switch c.kind {
		case physics.KindObstacle, physics.KindBoundary:
			s.reg.MarkForRemoval(pr.ID)
		case physics.KindPlayer:
			if err := s.hit(pr, c.other); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *CombatSystem) hit(pr *world.Projectile, targetID ecs.EntityID) error {
	target, err := s.reg.Player(targetID)
	if err != nil {
		return fmt.Errorf("%w: player %v in a collision is gone: %v", world.ErrInvariant, targetID, err)
	}
	self := target.ID == pr.Owner
	if self && !s.friendlyFire {
		return nil
	}
	s.reg.MarkForRemoval(pr.ID)

	// wrecks stop shots but take no damage
	if !target.Alive {
		return nil
	}
	if target.Protected() {
		event.Emit(s.bus, event.ProjectileHit{
			ProjectileID: pr.ID, ShooterID: pr.Owner, TargetID: target.ID, HealthLeft: target.Health,
		})
		return nil
	}

	target.Health -= pr.Damage
	if target.Health < 0 {
		target.Health = 0
	}
	shooter, _ := s.reg.Player(pr.Owner) // the shooter may have disconnected
	if shooter != nil && !self {
		shooter.Hits++
		shooter.Score += s.rules.Hit(pr.Damage)
	}
	event.Emit(s.bus, event.ProjectileHit{
		ProjectileID: pr.ID, ShooterID: pr.Owner, TargetID: target.ID,
		Damage: pr.Damage, HealthLeft: target.Health,
	})
	if target.Health > 0 {
		return nil
	}

	if err := s.reg.Eliminate(target, pr.Owner, s.match.Tick()); err != nil {
		return err
	}
	if shooter != nil && !self {
		shooter.Kills++
		shooter.Score += s.rules.Kill()
	}
	survival := float64(target.SurvivalTicks) / float64(s.rate)
	s.log.Info("player eliminated",
		zap.Stringer("player", target.ID),
		zap.String("agent", target.Agent),
		zap.Stringer("by", pr.Owner),
		zap.Float64("survival", survival))
	event.Emit(s.bus, event.PlayerEliminated{PlayerID: target.ID, KillerID: pr.Owner, SurvivalTime: survival})
	return nil
}

// resolveBump counts a hard contact against a live player.
func (s *CombatSystem) resolveBump(c contact) {
	if c.speed < s.bumpSpeed {
		return
	}
	p, err := s.reg.Player(c.self)
	if err != nil || !p.Alive {
		return
	}
	p.Collisions++
	p.Score += s.rules.Collision(c.speed)
	event.Emit(s.bus, event.PlayerCollided{PlayerID: p.ID, OtherID: c.other, Speed: c.speed})
}

// expire counts down projectile lifetimes.
func (s *CombatSystem) expire() {
	for _, pr := range s.reg.Projectiles() {
		if pr.Spent {
			continue
		}
		pr.Lifetime--
		if pr.Lifetime <= 0 {
			s.reg.MarkForRemoval(pr.ID)
		}
	}
}
