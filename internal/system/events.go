package system

import (
	"time"

	"github.com/arenasim/server/internal/core/event"
	coresys "github.com/arenasim/server/internal/core/system"
	"go.uber.org/zap"
)

// EventSystem delivers the events emitted during the previous tick.
// Phase 1 (PreUpdate).
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventSystem) Update(_ time.Duration) error {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
	return nil
}

// SubscribeLogging logs the gameplay events at debug level.
func SubscribeLogging(bus *event.Bus, log *zap.Logger) {
	event.Subscribe(bus, func(e event.PlayerConnected) {
		log.Debug("event: player connected", zap.Stringer("player", e.PlayerID), zap.String("agent", e.Agent))
	})
	event.Subscribe(bus, func(e event.PlayerDisconnected) {
		log.Debug("event: player disconnected", zap.Stringer("player", e.PlayerID), zap.String("agent", e.Agent))
	})
	event.Subscribe(bus, func(e event.ShotFired) {
		log.Debug("event: shot fired", zap.Stringer("player", e.PlayerID), zap.Stringer("projectile", e.ProjectileID))
	})
	event.Subscribe(bus, func(e event.ProjectileHit) {
		log.Debug("event: projectile hit",
			zap.Stringer("shooter", e.ShooterID),
			zap.Stringer("target", e.TargetID),
			zap.Int("damage", e.Damage),
			zap.Int("health_left", e.HealthLeft))
	})
	event.Subscribe(bus, func(e event.PlayerCollided) {
		log.Debug("event: player collided", zap.Stringer("player", e.PlayerID), zap.Float64("speed", e.Speed))
	})
	event.Subscribe(bus, func(e event.MatchRestarted) {
		log.Debug("event: match restarted", zap.Uint32("generation", e.Generation), zap.Int("agents", len(e.Rebound)))
	})
}
