package game

import (
	"fmt"
	"time"

	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/core/event"
	coresys "github.com/arenasim/server/internal/core/system"
	"github.com/arenasim/server/internal/match"
	"github.com/arenasim/server/internal/physics"
	"github.com/arenasim/server/internal/world"
	"go.uber.org/zap"
)

// inputSystem applies queued lifecycle requests, then the staged player
// commands. Phase 0 (Input).
type inputSystem struct {
	g *Game
}

func (s *inputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *inputSystem) Update(dt time.Duration) error {
	g := s.g
	clear(g.dropped)

drain:
	for i := 0; i < g.cfg.Tick.MaxRequestsPerTick; i++ {
		select {
		case r := <-g.inbox:
			rep, err := g.handle(r)
			if err != nil {
				g.queueReply(r.reply, reply{err: err})
				return err
			}
			g.queueReply(r.reply, rep)
		default:
			break drain
		}
	}

	for _, cmd := range g.commands.Drain() {
		if err := g.apply(cmd, dt); err != nil {
			return err
		}
	}
	return nil
}

// handle applies one lifecycle request. A non-nil error means the world is
// broken; request-level failures travel in the reply.
func (g *Game) handle(r request) (reply, error) {
	switch r.kind {
	case reqConnect:
		name, err := g.dir.Normalize(r.name)
		if err != nil {
			return reply{err: err}, nil
		}
		return g.connect(name)

	case reqReconnect:
		b, err := g.dir.Resolve(r.token)
		if err != nil {
			return reply{err: err}, nil
		}
		return g.connect(b.Name)

	case reqDisconnect:
		return reply{err: g.disconnect(r.id)}, nil

	case reqReady, reqUnready:
		return reply{err: g.setReady(r.id, r.kind == reqReady)}, nil

	case reqRestart:
		rebound, err := g.restart("requested")
		if err != nil {
			return reply{}, err
		}
		return reply{rebound: rebound}, nil
	}
	return reply{err: fmt.Errorf("unknown request kind %d", r.kind)}, nil
}

// connect attaches name to a player. A name that is already connected keeps
// its player; otherwise a new player is spawned, which only the lobby allows.
func (g *Game) connect(name string) (reply, error) {
	if b, ok := g.dir.Lookup(name); ok && b.Connected {
		return reply{id: b.PlayerID, token: b.Token}, nil
	}
	if err := g.match.Allowed(match.ActionConnect); err != nil {
		return reply{err: err}, nil
	}
	b := g.dir.Claim(name)
	p, err := g.reg.CreatePlayer(name, b.Color)
	if err != nil {
		return reply{}, err
	}
	if b, err = g.dir.Attach(name, p.ID); err != nil {
		return reply{}, fmt.Errorf("%w: %v", world.ErrInvariant, err)
	}
	g.log.Info("player connected",
		zap.String("agent", name),
		zap.Stringer("player", p.ID),
		zap.Int("binds", b.Binds))
	event.Emit(g.bus, event.PlayerConnected{PlayerID: p.ID, Agent: name})
	return reply{id: p.ID, token: b.Token}, nil
}

func (g *Game) disconnect(id ecs.EntityID) error {
	if _, ok := g.dir.ByPlayer(id); !ok {
		if _, err := g.reg.Player(id); err != nil {
			return err
		}
		return fmt.Errorf("%w: player %v is not connected", world.ErrNotFound, id)
	}
	if err := g.reg.Remove(id); err != nil {
		return err
	}
	b, err := g.dir.Disconnect(id)
	if err != nil {
		return err
	}
	g.dropped[id] = struct{}{}
	if tr := g.match.Abort("player disconnected"); tr.Changed() {
		g.matchSys.Announce(tr)
	}
	g.log.Info("player disconnected", zap.String("agent", b.Name), zap.Stringer("player", id))
	event.Emit(g.bus, event.PlayerDisconnected{PlayerID: id, Agent: b.Name})
	return nil
}

func (g *Game) setReady(id ecs.EntityID, ready bool) error {
	action := match.ActionUnready
	if ready {
		action = match.ActionReady
	}
	p, err := g.reg.Player(id)
	if err != nil {
		return err
	}
	if err := g.match.Allowed(action); err != nil {
		return err
	}
	p.Ready = ready
	return nil
}

// apply re-validates a staged command against the live world and executes
// it. Commands that went stale since they were queued are dropped.
func (g *Game) apply(cmd Command, dt time.Duration) error {
	if _, gone := g.dropped[cmd.Player]; gone {
		return nil
	}
	if g.match.Phase() != match.Active {
		g.reject(cmd, world.ErrInvalidPhase)
		return nil
	}
	p, err := g.reg.Player(cmd.Player)
	if err != nil {
		g.reject(cmd, err)
		return nil
	}
	if !p.Alive {
		g.reject(cmd, world.ErrEliminated)
		return nil
	}

	switch cmd.Kind {
	case ThrustForward:
		return g.reg.Thrust(p, 1, dt)
	case ThrustBackward:
		return g.reg.Thrust(p, -1, dt)
	case RotateRight:
		return g.reg.Turn(p, 1, dt)
	case RotateLeft:
		return g.reg.Turn(p, -1, dt)
	case Shoot:
		return g.shoot(p)
	}
	g.reject(cmd, ErrUnknownCommand)
	return nil
}

func (g *Game) shoot(p *world.Player) error {
	switch {
	case p.Protected():
		g.reject(Command{Player: p.ID, Kind: Shoot}, world.ErrSpawnProtected)
		return nil
	case p.ShootCooldown > 0:
		g.reject(Command{Player: p.ID, Kind: Shoot}, world.ErrOnCooldown)
		return nil
	case g.cfg.Projectile.MaxLive > 0 && g.reg.Count(physics.KindProjectile) >= g.cfg.Projectile.MaxLive:
		g.reject(Command{Player: p.ID, Kind: Shoot}, world.ErrRateLimited)
		return nil
	}
	pr, err := g.reg.CreateProjectile(p.ID, g.reg.MuzzleState(p))
	if err != nil {
		return err
	}
	p.Shots++
	p.Score += g.rules.Shot()
	p.ShootCooldown = g.cfg.Tick.Ticks(g.cfg.Player.ShootCooldown)
	event.Emit(g.bus, event.ShotFired{PlayerID: p.ID, ProjectileID: pr.ID})
	return nil
}

func (g *Game) reject(cmd Command, reason error) {
	g.log.Debug("command dropped",
		zap.Stringer("player", cmd.Player),
		zap.Stringer("command", cmd.Kind),
		zap.Error(reason))
}

// Command queues an action for player id, to be applied on the next tick.
// It is checked against the latest snapshot first so obviously invalid
// commands fail fast.
func (g *Game) Command(id ecs.EntityID, kind CommandKind) error {
	if _, ok := commandNames[kind]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCommand, kind)
	}
	s := g.Snapshot()
	p, err := s.Player(id)
	if err != nil {
		return err
	}
	if s.phase != match.Active {
		return fmt.Errorf("%w: %s not allowed in %s", world.ErrInvalidPhase, kind, s.Phase)
	}
	if !p.Alive {
		return fmt.Errorf("%w: %s", world.ErrEliminated, p.Agent)
	}
	if kind == Shoot {
		switch {
		case p.protected:
			return fmt.Errorf("%w: %.1fs left", world.ErrSpawnProtected, p.SpawnProtection)
		case p.cooldown:
			return fmt.Errorf("%w: %.2fs left", world.ErrOnCooldown, p.ShootCooldown)
		case g.cfg.Projectile.MaxLive > 0 && len(s.Projectiles) >= g.cfg.Projectile.MaxLive:
			return fmt.Errorf("%w: %d projectiles in flight", world.ErrRateLimited, len(s.Projectiles))
		}
	}
	if err := g.commands.Push(Command{Player: id, Kind: kind}); err != nil {
		g.log.Debug("command refused", zap.Stringer("player", id), zap.Error(err))
		return err
	}
	return nil
}
