package game

import (
	"fmt"

	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/data"
	"github.com/arenasim/server/internal/match"
	"github.com/arenasim/server/internal/physics"
	"github.com/arenasim/server/internal/world"
)

// PlayerView is the published state of one player.
type PlayerView struct {
	ID              string      `json:"id" msgpack:"id"`
	Agent           string      `json:"agent" msgpack:"agent"`
	Color           data.Color  `json:"color" msgpack:"color"`
	Position        physics.Vec `json:"position" msgpack:"position"`
	Velocity        physics.Vec `json:"velocity" msgpack:"velocity"`
	Heading         float64     `json:"angle" msgpack:"angle"` // radians
	AngularVelocity float64     `json:"angular_velocity" msgpack:"angular_velocity"`
	Health          int         `json:"health" msgpack:"health"`
	MaxHealth       int         `json:"max_health" msgpack:"max_health"`
	Alive           bool        `json:"alive" msgpack:"alive"`
	Ready           bool        `json:"ready" msgpack:"ready"`
	SpawnProtection float64     `json:"spawn_protection" msgpack:"spawn_protection"` // seconds left
	ShootCooldown   float64     `json:"shoot_cooldown" msgpack:"shoot_cooldown"`     // seconds left
	Shots           int         `json:"shots" msgpack:"shots"`
	Hits            int         `json:"hits" msgpack:"hits"`
	Kills           int         `json:"kills" msgpack:"kills"`
	Collisions      int         `json:"collisions" msgpack:"collisions"`
	Score           int         `json:"score" msgpack:"score"`
	Survival        float64     `json:"survival" msgpack:"survival"` // seconds, set once eliminated

	id        ecs.EntityID
	protected bool
	cooldown  bool
}

type ProjectileView struct {
	ID       string      `json:"id" msgpack:"id"`
	Owner    string      `json:"owner" msgpack:"owner"`
	Position physics.Vec `json:"position" msgpack:"position"`
	Velocity physics.Vec `json:"velocity" msgpack:"velocity"`
	Color    data.Color  `json:"color" msgpack:"color"`
}

type ObstacleView struct {
	Position physics.Vec `json:"position" msgpack:"position"`
	Radius   float64     `json:"radius" msgpack:"radius"`
}

// Snapshot is an immutable copy of the world published once per tick.
// Readers share it and must not modify it.
type Snapshot struct {
	Tick        uint64           `json:"tick" msgpack:"tick"`
	Generation  uint32           `json:"generation" msgpack:"generation"`
	Phase       string           `json:"phase" msgpack:"phase"`
	Countdown   float64          `json:"countdown" msgpack:"countdown"` // seconds left
	Elapsed     float64          `json:"elapsed" msgpack:"elapsed"`     // seconds of active play
	Remaining   float64          `json:"remaining,omitempty" msgpack:"remaining,omitempty"`
	Winner      string           `json:"winner,omitempty" msgpack:"winner,omitempty"`
	Width       float64          `json:"width" msgpack:"width"`
	Height      float64          `json:"height" msgpack:"height"`
	Players     []PlayerView     `json:"players" msgpack:"players"`
	Projectiles []ProjectileView `json:"projectiles" msgpack:"projectiles"`
	Obstacles   []ObstacleView   `json:"obstacles" msgpack:"obstacles"`

	phase   match.Phase
	index   map[ecs.EntityID]int
	borders []world.Boundary
}

// Player looks up a player, telling ids of an older generation apart.
func (s *Snapshot) Player(id ecs.EntityID) (*PlayerView, error) {
	if i, ok := s.index[id]; ok {
		return &s.Players[i], nil
	}
	if id.Generation() != s.Generation {
		return nil, fmt.Errorf("%w: %v", world.ErrStaleGeneration, id)
	}
	return nil, fmt.Errorf("%w: player %v", world.ErrNotFound, id)
}

// MatchPhase is the typed phase of the snapshot.
func (s *Snapshot) MatchPhase() match.Phase { return s.phase }

// GameView is what one agent sees of the match.
type GameView struct {
	Phase      string       `json:"phase"`
	Started    bool         `json:"game_started"`
	Countdown  float64      `json:"countdown"`
	Elapsed    float64      `json:"elapsed"`
	Remaining  float64      `json:"remaining,omitempty"`
	Generation uint32       `json:"generation"`
	Ready      bool         `json:"ready"`
	Winner     string       `json:"winner,omitempty"`
	Players    []PlayerView `json:"players"`
}

func (g *Game) buildSnapshot() *Snapshot {
	seconds := func(ticks uint64) float64 { return float64(ticks) / float64(g.cfg.Tick.Rate) }
	players := g.reg.Players()
	projectiles := g.reg.Projectiles()
	arena := g.reg.Arena()

	s := &Snapshot{
		Tick:        g.tick,
		Generation:  g.match.Generation(),
		Phase:       g.match.Phase().String(),
		Countdown:   seconds(uint64(g.match.CountdownRemaining())),
		Elapsed:     seconds(g.match.Elapsed()),
		Width:       arena.Width,
		Height:      arena.Height,
		Players:     make([]PlayerView, 0, len(players)),
		Projectiles: make([]ProjectileView, 0, len(projectiles)),
		Obstacles:   g.obstacles,
		phase:       g.match.Phase(),
		index:       make(map[ecs.EntityID]int, len(players)),
		borders:     g.borders,
	}
	if d := g.match.DurationTicks(); d > 0 && s.phase == match.Active {
		s.Remaining = seconds(uint64(d) - g.match.Elapsed())
	}
	for _, p := range players {
		if p.ID == g.match.Winner() {
			s.Winner = p.Agent
		}
		s.index[p.ID] = len(s.Players)
		s.Players = append(s.Players, PlayerView{
			ID:              p.ID.String(),
			Agent:           p.Agent,
			Color:           arena.Color(p.Color),
			Position:        p.Position,
			Velocity:        p.Velocity,
			Heading:         p.Heading,
			AngularVelocity: p.AngularVelocity,
			Health:          p.Health,
			MaxHealth:       p.MaxHealth,
			Alive:           p.Alive,
			Ready:           p.Ready,
			SpawnProtection: seconds(uint64(p.SpawnProtection)),
			ShootCooldown:   seconds(uint64(p.ShootCooldown)),
			Shots:           p.Shots,
			Hits:            p.Hits,
			Kills:           p.Kills,
			Collisions:      p.Collisions,
			Score:           p.Score,
			Survival:        seconds(p.SurvivalTicks),
			id:              p.ID,
			protected:       p.Protected(),
			cooldown:        p.ShootCooldown > 0,
		})
	}
	for _, pr := range projectiles {
		if pr.Spent {
			continue
		}
		s.Projectiles = append(s.Projectiles, ProjectileView{
			ID:       pr.ID.String(),
			Owner:    pr.Owner.String(),
			Position: pr.Position,
			Velocity: pr.Velocity,
			Color:    arena.Color(pr.Color),
		})
	}
	return s
}

// Snapshot returns the latest published world state. It is never nil once
// New has returned.
func (g *Game) Snapshot() *Snapshot { return g.snap.Load() }

// PlayerState reads one player from the latest snapshot.
func (g *Game) PlayerState(id ecs.EntityID) (PlayerView, error) {
	p, err := g.Snapshot().Player(id)
	if err != nil {
		return PlayerView{}, err
	}
	return *p, nil
}

// GameState reads the match state as seen by player id.
func (g *Game) GameState(id ecs.EntityID) (GameView, error) {
	s := g.Snapshot()
	p, err := s.Player(id)
	if err != nil {
		return GameView{}, err
	}
	return GameView{
		Phase:      s.Phase,
		Started:    s.phase == match.Active || s.phase == match.Finished,
		Countdown:  s.Countdown,
		Elapsed:    s.Elapsed,
		Remaining:  s.Remaining,
		Generation: s.Generation,
		Ready:      p.Ready,
		Winner:     s.Winner,
		Players:    s.Players,
	}, nil
}

// Subscribe registers for snapshot updates. The channel holds only the most
// recent snapshot; slow readers skip ticks. cancel releases the channel.
func (g *Game) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)
	g.subMu.Lock()
	g.nextSub++
	id := g.nextSub
	g.subs[id] = ch
	g.subMu.Unlock()
	return ch, func() {
		g.subMu.Lock()
		delete(g.subs, id)
		g.subMu.Unlock()
	}
}

func (g *Game) broadcast(s *Snapshot) {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	for _, ch := range g.subs {
		select {
		case <-ch: // drop the stale one
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
