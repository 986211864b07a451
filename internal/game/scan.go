package game

import (
	"math"
	"sort"

	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/data"
	"github.com/arenasim/server/internal/match"
	"github.com/arenasim/server/internal/physics"
)

// ScanObject is one sensed object in the scanning player's frame: x along
// the heading, y to its right.
type ScanObject struct {
	Type             string       `json:"type"`
	RelativePosition physics.Vec  `json:"relative_position"`
	RelativeVelocity *physics.Vec `json:"relative_velocity,omitempty"`
	Distance         float64      `json:"distance"` // surface to surface
	Color            *data.Color  `json:"color,omitempty"`
}

type ScanResult struct {
	NearbyObjects []ScanObject `json:"nearby_objects"`
}

// Scan reports the objects within the scan radius of player id, nearest
// first. Readings carry the configured sensor noise. Outside an active match
// the result is empty.
func (g *Game) Scan(id ecs.EntityID) (ScanResult, error) {
	s := g.Snapshot()
	me, err := s.Player(id)
	if err != nil {
		return ScanResult{}, err
	}
	res := ScanResult{NearbyObjects: []ScanObject{}}
	if s.phase != match.Active {
		return res, nil
	}

	sc := &scanner{g: g, me: me, radius: g.cfg.Scan.Radius}
	for _, o := range s.Obstacles {
		sc.body("obstacle", o.Position, physics.Vec{}, o.Radius, nil)
	}
	for i := range s.Projectiles {
		pr := &s.Projectiles[i]
		sc.body("projectile", pr.Position, pr.Velocity, g.cfg.Projectile.Radius, &pr.Color)
	}
	for i := range s.Players {
		other := &s.Players[i]
		if other.id == me.id {
			continue
		}
		sc.body("other_player", other.Position, other.Velocity, g.cfg.Player.Radius, &other.Color)
	}
	for _, b := range s.borders {
		sc.border(b.A, b.B)
	}

	sort.SliceStable(sc.out, func(i, j int) bool { return sc.out[i].Distance < sc.out[j].Distance })
	if limit := g.cfg.Scan.Limit; limit > 0 && len(sc.out) > limit {
		sc.out = sc.out[:limit]
	}
	res.NearbyObjects = append(res.NearbyObjects, sc.out...)
	return res, nil
}

type scanner struct {
	g      *Game
	me     *PlayerView
	radius float64
	out    []ScanObject
}

func (sc *scanner) body(kind string, pos, vel physics.Vec, radius float64, color *data.Color) {
	dist := sc.me.Position.Dist(pos) - radius - sc.g.cfg.Player.Radius
	if dist > sc.radius {
		return
	}
	relVel := sc.local(vel.Sub(sc.me.Velocity)).Add(sc.g.noiseVec(sc.g.cfg.Scan.VelocityNoise))
	obj := ScanObject{
		Type:             kind,
		RelativePosition: sc.local(pos.Sub(sc.me.Position)).Add(sc.g.noiseVec(sc.g.cfg.Scan.PositionNoise)),
		RelativeVelocity: &relVel,
		Distance:         sc.g.noisyDistance(dist),
	}
	if color != nil {
		c := *color
		obj.Color = &c
	}
	sc.out = append(sc.out, obj)
}

func (sc *scanner) border(a, b physics.Vec) {
	closest := physics.ClosestOnSegment(sc.me.Position, a, b)
	dist := sc.me.Position.Dist(closest)
	if dist > sc.radius {
		return
	}
	sc.out = append(sc.out, ScanObject{
		Type:             "border",
		RelativePosition: sc.local(closest.Sub(sc.me.Position)).Add(sc.g.noiseVec(sc.g.cfg.Scan.PositionNoise)),
		Distance:         sc.g.noisyDistance(dist),
	})
}

// local rotates a world-frame vector into the heading frame.
func (sc *scanner) local(v physics.Vec) physics.Vec {
	return v.Rotate(-sc.me.Heading)
}

func (g *Game) noiseVec(amp float64) physics.Vec {
	if amp == 0 {
		return physics.Vec{}
	}
	g.noiseMu.Lock()
	defer g.noiseMu.Unlock()
	return physics.V(amp*(2*g.noise.Float64()-1), amp*(2*g.noise.Float64()-1))
}

func (g *Game) noisyDistance(d float64) float64 {
	if amp := g.cfg.Scan.DistanceNoise; amp != 0 {
		g.noiseMu.Lock()
		d *= 1 + amp*(2*g.noise.Float64()-1)
		g.noiseMu.Unlock()
	}
	return math.Max(0, d)
}
