package system

import (
	"time"

	"github.com/arenasim/server/internal/config"
	"github.com/arenasim/server/internal/core/event"
	coresys "github.com/arenasim/server/internal/core/system"
	"github.com/arenasim/server/internal/match"
	"github.com/arenasim/server/internal/scripting"
	"github.com/arenasim/server/internal/stats"
	"github.com/arenasim/server/internal/world"
	"go.uber.org/zap"
)

// Restarter performs a full match restart.
type Restarter interface {
	AutoRestart() error
}

// MatchSystem runs the per-player timers and the match transitions.
// Phase 4 (PostUpdate).
type MatchSystem struct {
	reg       *world.Registry
	match     *match.Machine
	bus       *event.Bus
	rules     scripting.Rules
	restarter Restarter
	log       *zap.Logger
	rate      int
	now       func() time.Time
}

func NewMatchSystem(reg *world.Registry, m *match.Machine, bus *event.Bus, rules scripting.Rules, cfg *config.Config, log *zap.Logger) *MatchSystem {
	return &MatchSystem{
		reg:   reg,
		match: m,
		bus:   bus,
		rules: rules,
		log:   log,
		rate:  cfg.Tick.Rate,
		now:   time.Now,
	}
}

// SetRestarter wires the auto restart target. Without one a due restart is
// only logged.
func (s *MatchSystem) SetRestarter(r Restarter) { s.restarter = r }

func (s *MatchSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *MatchSystem) Update(_ time.Duration) error {
	players := s.reg.Players()
	if s.match.Phase() == match.Active {
		for _, p := range players {
			if !p.Alive {
				continue
			}
			if p.SpawnProtection > 0 {
				p.SpawnProtection--
			}
			if p.ShootCooldown > 0 {
				p.ShootCooldown--
			}
		}
	}

	contenders := make([]match.Contender, len(players))
	for i, p := range players {
		contenders[i] = match.Contender{ID: p.ID, Alive: p.Alive, Ready: p.Ready, Health: p.Health, Score: p.Score}
	}
	tr := s.match.Advance(contenders)
	if tr.Changed() {
		s.Announce(tr)
		switch tr.To {
		case match.Active:
			for _, p := range players {
				p.SpawnTick = s.match.Elapsed()
			}
		case match.Finished:
			s.Conclude(tr.Reason)
		}
	}
	if tr.RestartDue {
		if s.restarter == nil {
			s.log.Warn("auto restart due but no restarter is wired")
			return nil
		}
		return s.restarter.AutoRestart()
	}
	return nil
}

// Announce logs a phase change and puts it on the bus.
func (s *MatchSystem) Announce(tr match.Transition) {
	s.log.Info("match phase changed",
		zap.Stringer("from", tr.From),
		zap.Stringer("to", tr.To),
		zap.String("reason", tr.Reason),
		zap.Uint32("generation", s.match.Generation()))
	event.Emit(s.bus, event.PhaseChanged{From: tr.From, To: tr.To, Generation: s.match.Generation(), Reason: tr.Reason})
}

// Conclude applies the end-of-match score and publishes the result. It is
// called when a match finishes and when an active match is restarted.
func (s *MatchSystem) Conclude(reason string) stats.MatchResult {
	winner := s.match.Winner()
	res := stats.MatchResult{
		Generation: s.match.Generation(),
		FinishedAt: s.now(),
		Duration:   s.seconds(s.match.Elapsed()),
		Reason:     reason,
	}
	for _, p := range s.reg.Players() {
		p.Score += s.rules.MatchEnd(p.Health)
		survival := p.SurvivalTicks
		if p.Alive && s.match.Elapsed() > p.SpawnTick {
			survival = s.match.Elapsed() - p.SpawnTick
		}
		won := !winner.IsZero() && p.ID == winner
		if won {
			res.Winner = p.Agent
		}
		res.Players = append(res.Players, stats.PlayerResult{
			Agent:      p.Agent,
			Shots:      p.Shots,
			Hits:       p.Hits,
			Kills:      p.Kills,
			Collisions: p.Collisions,
			Score:      p.Score,
			HealthLeft: p.Health,
			Survival:   s.seconds(survival),
			Winner:     won,
		})
	}
	s.log.Info("match concluded",
		zap.Uint32("generation", res.Generation),
		zap.String("reason", reason),
		zap.String("winner", res.Winner),
		zap.Float64("duration", res.Duration))
	event.Emit(s.bus, event.MatchFinished{Result: res})
	return res
}

func (s *MatchSystem) seconds(ticks uint64) float64 {
	return float64(ticks) / float64(s.rate)
}
