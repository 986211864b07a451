package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/arenasim/server/internal/world"
)

// cooldowns throttles each player per endpoint. A call inside the window is
// refused and does not move the window.
type cooldowns struct {
	mu   sync.Mutex
	last map[string]map[string]time.Time // player -> endpoint -> last accepted call
	now  func() time.Time
}

func newCooldowns() *cooldowns {
	return &cooldowns{
		last: make(map[string]map[string]time.Time),
		now:  time.Now,
	}
}

func (c *cooldowns) check(player, endpoint string, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	calls, ok := c.last[player]
	if !ok {
		calls = make(map[string]time.Time)
		c.last[player] = calls
	}
	if at, ok := calls[endpoint]; ok {
		if wait := window - now.Sub(at); wait > 0 {
			return fmt.Errorf("%w: %s, wait %.2fs", world.ErrRateLimited, endpoint, wait.Seconds())
		}
	}
	calls[endpoint] = now
	return nil
}

func (c *cooldowns) forget(player string) {
	c.mu.Lock()
	delete(c.last, player)
	c.mu.Unlock()
}

func (c *cooldowns) reset() {
	c.mu.Lock()
	c.last = make(map[string]map[string]time.Time)
	c.mu.Unlock()
}
