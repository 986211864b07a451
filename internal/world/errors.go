package world

import (
	"errors"
	"fmt"
)

// Request-level failures. They are returned to the caller and never stop the
// game loop.
var (
	ErrNotFound = errors.New("not found")
	// ErrStaleGeneration is a NotFound for an id minted before the last restart.
	ErrStaleGeneration = fmt.Errorf("%w: stale generation", ErrNotFound)
	ErrInvalidPhase    = errors.New("invalid phase")
	ErrEliminated      = errors.New("player eliminated")
	ErrSpawnProtected  = errors.New("spawn protection active")
	ErrOnCooldown      = errors.New("on cooldown")
	ErrRateLimited     = errors.New("rate limited")
)

// ErrInvariant marks registry/physics disagreement. It aborts the tick.
var ErrInvariant = errors.New("invariant violation")
