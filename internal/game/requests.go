package game

import (
	"context"
	"fmt"

	"github.com/arenasim/server/internal/core/ecs"
)

type requestKind uint8

const (
	reqConnect requestKind = iota
	reqReconnect
	reqDisconnect
	reqReady
	reqUnready
	reqRestart
)

// request is a lifecycle call handed to the tick goroutine through the
// inbox. The reply is sent after the tick's snapshot is published.
type request struct {
	kind  requestKind
	name  string
	token string
	id    ecs.EntityID
	reply chan reply
}

type reply struct {
	id      ecs.EntityID
	token   string
	rebound map[string]ecs.EntityID
	err     error
}

// call queues r and waits for its answer. Both steps give up when ctx ends
// or the loop stops.
func (g *Game) call(ctx context.Context, r request) (reply, error) {
	r.reply = make(chan reply, 1)
	select {
	case g.inbox <- r:
	case <-g.done:
		return reply{}, ErrStopped
	case <-ctx.Done():
		return reply{}, fmt.Errorf("queue request: %w", ctx.Err())
	}
	select {
	case rep := <-r.reply:
		return rep, rep.err
	case <-g.done:
		return reply{}, ErrStopped
	case <-ctx.Done():
		return reply{}, fmt.Errorf("await reply: %w", ctx.Err())
	}
}

// Connect joins agent name to the game, or returns the current player when
// the name is already connected.
func (g *Game) Connect(ctx context.Context, name string) (ecs.EntityID, string, error) {
	rep, err := g.call(ctx, request{kind: reqConnect, name: name})
	return rep.id, rep.token, err
}

// Reconnect resumes the binding a token was issued for.
func (g *Game) Reconnect(ctx context.Context, token string) (ecs.EntityID, string, error) {
	rep, err := g.call(ctx, request{kind: reqReconnect, token: token})
	return rep.id, rep.token, err
}

func (g *Game) Disconnect(ctx context.Context, id ecs.EntityID) error {
	_, err := g.call(ctx, request{kind: reqDisconnect, id: id})
	return err
}

func (g *Game) Ready(ctx context.Context, id ecs.EntityID) error {
	_, err := g.call(ctx, request{kind: reqReady, id: id})
	return err
}

func (g *Game) Unready(ctx context.Context, id ecs.EntityID) error {
	_, err := g.call(ctx, request{kind: reqUnready, id: id})
	return err
}

// Restart starts a new generation and returns the new player id of every
// connected agent.
func (g *Game) Restart(ctx context.Context) (map[string]ecs.EntityID, error) {
	rep, err := g.call(ctx, request{kind: reqRestart})
	return rep.rebound, err
}
