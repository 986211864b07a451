package game

import (
	"errors"
	"fmt"
	"sync"

	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/world"
)

var ErrUnknownCommand = errors.New("unknown command")

type CommandKind uint8

const (
	ThrustForward CommandKind = iota + 1
	ThrustBackward
	RotateLeft
	RotateRight
	Shoot
)

var commandNames = map[CommandKind]string{
	ThrustForward:  "thrust_forward",
	ThrustBackward: "thrust_backward",
	RotateLeft:     "rotate_left",
	RotateRight:    "rotate_right",
	Shoot:          "shoot",
}

func (k CommandKind) String() string {
	if s, ok := commandNames[k]; ok {
		return s
	}
	return fmt.Sprintf("command(%d)", k)
}

// ParseCommand maps a wire name such as "thrust_forward" to its kind.
func ParseCommand(s string) (CommandKind, error) {
	for k, name := range commandNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownCommand, s)
}

// Command is one queued player action.
type Command struct {
	Player ecs.EntityID
	Kind   CommandKind
}

// CommandBuffer stores commands for the next tick in a fixed-size ring. It
// is safe for concurrent producers and a single consumer. Each player may
// stage at most perPlayer commands between two drains.
type CommandBuffer struct {
	mu        sync.Mutex
	data      []Command
	head      int
	tail      int
	count     int
	perPlayer int
	staged    map[ecs.EntityID]int
	dropped   uint64
}

func NewCommandBuffer(capacity, perPlayer int) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandBuffer{
		data:      make([]Command, capacity),
		perPlayer: perPlayer,
		staged:    make(map[ecs.EntityID]int),
	}
}

// Push stages a command. It fails with ErrRateLimited when the player's
// per-tick allowance is used up or the ring is full.
func (b *CommandBuffer) Push(cmd Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.perPlayer > 0 && b.staged[cmd.Player] >= b.perPlayer {
		b.dropped++
		return fmt.Errorf("%w: more than %d commands this tick", world.ErrRateLimited, b.perPlayer)
	}
	if b.count == len(b.data) {
		b.dropped++
		return fmt.Errorf("%w: command queue full", world.ErrRateLimited)
	}
	b.data[b.tail] = cmd
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	b.staged[cmd.Player]++
	return nil
}

// Drain returns all staged commands in arrival order and clears the buffer.
func (b *CommandBuffer) Drain() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.staged) > 0 {
		b.staged = make(map[ecs.EntityID]int)
	}
	if b.count == 0 {
		return nil
	}
	out := make([]Command, b.count)
	for i := range out {
		out[i] = b.data[(b.head+i)%len(b.data)]
	}
	b.head, b.tail, b.count = 0, 0, 0
	return out
}

func (b *CommandBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped reports how many commands were refused since start.
func (b *CommandBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
