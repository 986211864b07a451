package system

import (
	"time"

	"github.com/arenasim/server/internal/core/event"
	coresys "github.com/arenasim/server/internal/core/system"
	"github.com/arenasim/server/internal/stats"
)

// ResultSubmitter accepts finished match results without blocking.
type ResultSubmitter interface {
	Submit(stats.MatchResult) bool
}

// StatsSystem forwards finished matches to the stats recorder.
// Phase 7 (Persist).
type StatsSystem struct {
	recorder ResultSubmitter
	pending  []stats.MatchResult
}

func NewStatsSystem(bus *event.Bus, recorder ResultSubmitter) *StatsSystem {
	s := &StatsSystem{recorder: recorder}
	event.Subscribe(bus, func(e event.MatchFinished) {
		s.pending = append(s.pending, e.Result)
	})
	return s
}

func (s *StatsSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *StatsSystem) Update(_ time.Duration) error {
	for _, r := range s.pending {
		s.recorder.Submit(r)
	}
	s.pending = s.pending[:0]
	return nil
}
