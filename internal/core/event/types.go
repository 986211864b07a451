package event

import (
	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/match"
	"github.com/arenasim/server/internal/stats"
)

type PlayerConnected struct {
	PlayerID ecs.EntityID
	Agent    string
}

type PlayerDisconnected struct {
	PlayerID ecs.EntityID
	Agent    string
}

type ShotFired struct {
	PlayerID     ecs.EntityID
	ProjectileID ecs.EntityID
}

// ProjectileHit is emitted for every projectile that reached a live player,
// including hits absorbed by spawn protection (Damage == 0).
type ProjectileHit struct {
	ProjectileID ecs.EntityID
	ShooterID    ecs.EntityID
	TargetID     ecs.EntityID
	Damage       int
	HealthLeft   int
}

type PlayerEliminated struct {
	PlayerID     ecs.EntityID
	KillerID     ecs.EntityID
	SurvivalTime float64 // seconds
}

// PlayerCollided is emitted when a collision counts against a player.
type PlayerCollided struct {
	PlayerID ecs.EntityID
	OtherID  ecs.EntityID
	Speed    float64
}

type PhaseChanged struct {
	From       match.Phase
	To         match.Phase
	Generation uint32
	Reason     string
}

type MatchFinished struct {
	Result stats.MatchResult
}

type MatchRestarted struct {
	Generation uint32
	Rebound    map[string]ecs.EntityID
}
