package stats

import (
	"context"
	"time"
)

// PlayerResult is one agent's line of a finished match.
type PlayerResult struct {
	Agent      string  `json:"agent" msgpack:"agent"`
	Shots      int     `json:"shots" msgpack:"shots"`
	Hits       int     `json:"hits" msgpack:"hits"`
	Kills      int     `json:"kills" msgpack:"kills"`
	Collisions int     `json:"collisions" msgpack:"collisions"`
	Score      int     `json:"score" msgpack:"score"`
	HealthLeft int     `json:"health_left" msgpack:"health_left"`
	Survival   float64 `json:"survival" msgpack:"survival"` // seconds alive in the match
	Winner     bool    `json:"winner" msgpack:"winner"`
}

// MatchResult is the statistics record of one match, keyed by agent name
// rather than player id so lineage survives restarts.
type MatchResult struct {
	Generation uint32         `json:"generation" msgpack:"generation"`
	FinishedAt time.Time      `json:"finished_at" msgpack:"finished_at"`
	Duration   float64        `json:"duration" msgpack:"duration"` // seconds of active play
	Reason     string         `json:"reason" msgpack:"reason"`
	Winner     string         `json:"winner,omitempty" msgpack:"winner,omitempty"`
	Players    []PlayerResult `json:"players" msgpack:"players"`
}

// Sink stores finished match results.
type Sink interface {
	Record(ctx context.Context, r MatchResult) error
}
