package match

import (
	"fmt"
	"sort"

	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/world"
)

type Phase uint8

const (
	Lobby Phase = iota
	Countdown
	Active
	Finished
)

var phaseNames = [...]string{"lobby", "countdown", "active", "finished"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", p)
}

// Action is a request class gated by the current phase.
type Action uint8

const (
	ActionConnect Action = iota
	ActionReady
	ActionUnready
	ActionCommand
	ActionDisconnect
	ActionRestart
)

var actionNames = [...]string{"connect", "ready", "unready", "command", "disconnect", "restart"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", a)
}

// Contender is the match's view of one connected player.
type Contender struct {
	ID     ecs.EntityID
	Alive  bool
	Ready  bool
	Health int
	Score  int
}

// Transition describes what one Advance did. From == To when the phase did
// not change.
type Transition struct {
	From   Phase
	To     Phase
	Reason string
	Winner ecs.EntityID // zero when there is none
	// RestartDue is set once the finished match has waited the configured
	// auto restart delay. The caller performs the restart.
	RestartDue bool
}

func (t Transition) Changed() bool { return t.From != t.To }

// Machine is the lobby/countdown/active/finished state machine. All durations
// are in ticks; zero duration and auto restart disable the feature.
// Owned by the game loop goroutine.
type Machine struct {
	phase      Phase
	generation uint32

	countdownTicks int
	durationTicks  int
	restartTicks   int

	countdown   int
	elapsed     uint64
	finishedFor int
	started     int
	winner      ecs.EntityID
}

func New(countdownTicks, durationTicks, restartTicks int) *Machine {
	return &Machine{
		countdownTicks: countdownTicks,
		durationTicks:  durationTicks,
		restartTicks:   restartTicks,
	}
}

func (m *Machine) Phase() Phase         { return m.phase }
func (m *Machine) Generation() uint32   { return m.generation }
func (m *Machine) Winner() ecs.EntityID { return m.winner }

// Elapsed is the number of completed active ticks.
func (m *Machine) Elapsed() uint64 { return m.elapsed }

// Tick is the number of the active tick in progress, counted from 1. It is
// the clock spawn and elimination times are measured on.
func (m *Machine) Tick() uint64 { return m.elapsed + 1 }

// CountdownRemaining is the ticks left before the match starts.
func (m *Machine) CountdownRemaining() int {
	if m.phase != Countdown {
		return 0
	}
	return m.countdown
}

// Started is the number of players the active match began with.
func (m *Machine) Started() int { return m.started }

// DurationTicks is the configured match length, zero for none.
func (m *Machine) DurationTicks() int { return m.durationTicks }

// Allowed reports whether action may be taken in the current phase.
func (m *Machine) Allowed(a Action) error {
	ok := false
	switch a {
	case ActionConnect:
		ok = m.phase == Lobby
	case ActionReady, ActionUnready:
		ok = m.phase == Lobby || m.phase == Countdown
	case ActionCommand:
		ok = m.phase == Active
	case ActionDisconnect, ActionRestart:
		ok = true
	}
	if !ok {
		return fmt.Errorf("%w: %s not allowed in %s", world.ErrInvalidPhase, a, m.phase)
	}
	return nil
}

// Advance runs the transition checks for one tick. contenders are the
// players currently connected.
func (m *Machine) Advance(contenders []Contender) Transition {
	from := m.phase
	switch m.phase {
	case Lobby:
		if allReady(contenders) {
			m.phase = Countdown
			m.countdown = m.countdownTicks
			return Transition{From: from, To: Countdown, Reason: "all players ready"}
		}

	case Countdown:
		if !allReady(contenders) {
			m.toLobby()
			return Transition{From: from, To: Lobby, Reason: "player not ready"}
		}
		if m.countdown > 0 {
			m.countdown--
		}
		if m.countdown == 0 {
			m.phase = Active
			m.elapsed = 0
			m.started = len(contenders)
			return Transition{From: from, To: Active, Reason: "countdown elapsed"}
		}

	case Active:
		m.elapsed++
		alive := make([]Contender, 0, len(contenders))
		for _, c := range contenders {
			if c.Alive {
				alive = append(alive, c)
			}
		}
		switch {
		case len(alive) == 0:
			return m.finish(from, 0, "no players alive")
		case len(alive) == 1 && m.started >= 2:
			return m.finish(from, alive[0].ID, "last player standing")
		case m.durationTicks > 0 && m.elapsed >= uint64(m.durationTicks):
			return m.finish(from, leader(alive), "time limit reached")
		}

	case Finished:
		m.finishedFor++
		if m.restartTicks > 0 && m.finishedFor >= m.restartTicks {
			return Transition{From: from, To: from, Reason: "auto restart", RestartDue: true}
		}
	}
	return Transition{From: from, To: m.phase}
}

// Abort cancels a running countdown. It is a no-op in other phases.
func (m *Machine) Abort(reason string) Transition {
	from := m.phase
	if from != Countdown {
		return Transition{From: from, To: from}
	}
	m.toLobby()
	return Transition{From: from, To: Lobby, Reason: reason}
}

// Restart re-enters the lobby under a new generation. Accepted from any phase.
func (m *Machine) Restart() Transition {
	from := m.phase
	m.toLobby()
	m.elapsed = 0
	m.started = 0
	m.winner = 0
	m.finishedFor = 0
	m.generation++
	return Transition{From: from, To: Lobby, Reason: "restart"}
}

func (m *Machine) finish(from Phase, winner ecs.EntityID, reason string) Transition {
	m.phase = Finished
	m.winner = winner
	m.finishedFor = 0
	return Transition{From: from, To: Finished, Reason: reason, Winner: winner}
}

func (m *Machine) toLobby() {
	m.phase = Lobby
	m.countdown = 0
}

func allReady(cs []Contender) bool {
	if len(cs) == 0 {
		return false
	}
	for _, c := range cs {
		if !c.Ready {
			return false
		}
	}
	return true
}

// leader picks the timeout winner: most health, then best score, then the
// lowest id.
func leader(alive []Contender) ecs.EntityID {
	sort.Slice(alive, func(i, j int) bool {
		a, b := alive[i], alive[j]
		if a.Health != b.Health {
			return a.Health > b.Health
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ID < b.ID
	})
	return alive[0].ID
}
