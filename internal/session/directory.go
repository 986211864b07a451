package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/world"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/secure/precis"
)

var (
	ErrInvalidName = errors.New("invalid agent name")
	// ErrUnknownToken is a NotFound so callers can treat it like an unknown id.
	ErrUnknownToken = fmt.Errorf("%w: unknown reconnect token", world.ErrNotFound)
)

const maxNameLen = 32

// Binding is the durable identity of one agent. The player id changes on
// every restart; the name, color and token do not.
type Binding struct {
	Name      string
	PlayerID  ecs.EntityID
	Color     int
	Token     string
	Connected bool
	Binds     int // times this name was attached to a player
}

// Directory maps agent names to their current player. Owned by the game
// loop goroutine.
type Directory struct {
	key       []byte
	byName    map[string]*Binding
	byPlayer  map[ecs.EntityID]string
	byToken   map[string]string
	serial    uint64
	anonymous int
	colors    int
}

// NewDirectory creates an empty directory. A nil key draws a random one, so
// tokens from a previous process are rejected.
func NewDirectory(key []byte) (*Directory, error) {
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("token key: %w", err)
		}
	}
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("token key longer than %d bytes", blake2b.Size)
	}
	return &Directory{
		key:      key,
		byName:   make(map[string]*Binding),
		byPlayer: make(map[ecs.EntityID]string),
		byToken:  make(map[string]string),
	}, nil
}

// Normalize maps a requested agent name to its canonical form. An empty name
// yields a generated one.
func (d *Directory) Normalize(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		d.anonymous++
		return fmt.Sprintf("agent-%d", d.anonymous), nil
	}
	out, err := precis.UsernameCasePreserved.String(name)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidName, name, err)
	}
	if len(out) > maxNameLen {
		return "", fmt.Errorf("%w %q: longer than %d bytes", ErrInvalidName, name, maxNameLen)
	}
	return out, nil
}

// Lookup returns the binding for a normalized name.
func (d *Directory) Lookup(name string) (*Binding, bool) {
	b, ok := d.byName[name]
	return b, ok
}

// Claim returns the binding for name, creating an unattached one with the
// next palette color when the name is new.
func (d *Directory) Claim(name string) *Binding {
	if b, ok := d.byName[name]; ok {
		return b
	}
	b := &Binding{Name: name, Color: d.colors}
	d.colors++
	d.byName[name] = b
	return b
}

// Attach connects name to player id and issues a fresh reconnect token.
func (d *Directory) Attach(name string, id ecs.EntityID) (*Binding, error) {
	b, ok := d.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: agent %q", world.ErrNotFound, name)
	}
	if b.Connected {
		delete(d.byPlayer, b.PlayerID)
	}
	if b.Token != "" {
		delete(d.byToken, b.Token)
	}
	d.serial++
	b.Token = d.token(name, d.serial)
	b.PlayerID = id
	b.Connected = true
	b.Binds++
	d.byPlayer[id] = name
	d.byToken[b.Token] = name
	return b, nil
}

// ByPlayer returns the connected binding holding player id.
func (d *Directory) ByPlayer(id ecs.EntityID) (*Binding, bool) {
	name, ok := d.byPlayer[id]
	if !ok {
		return nil, false
	}
	return d.byName[name], true
}

// Disconnect releases the player of a binding. The name keeps its color and
// token so a later connect or reconnect finds it again.
func (d *Directory) Disconnect(id ecs.EntityID) (*Binding, error) {
	b, ok := d.ByPlayer(id)
	if !ok {
		return nil, fmt.Errorf("%w: player %v", world.ErrNotFound, id)
	}
	delete(d.byPlayer, id)
	b.Connected = false
	b.PlayerID = 0
	return b, nil
}

// Rebind moves a connected binding to a freshly minted player id. The token
// stays valid.
func (d *Directory) Rebind(name string, id ecs.EntityID) error {
	b, ok := d.byName[name]
	if !ok || !b.Connected {
		return fmt.Errorf("%w: no connected agent %q", world.ErrNotFound, name)
	}
	delete(d.byPlayer, b.PlayerID)
	b.PlayerID = id
	d.byPlayer[id] = name
	return nil
}

// Resolve finds the binding a reconnect token was issued for.
func (d *Directory) Resolve(token string) (*Binding, error) {
	name, ok := d.byToken[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	b := d.byName[name]
	if subtle.ConstantTimeCompare([]byte(b.Token), []byte(token)) != 1 {
		return nil, ErrUnknownToken
	}
	return b, nil
}

// Connected lists the connected bindings ordered by name.
func (d *Directory) Connected() []*Binding {
	out := make([]*Binding, 0, len(d.byPlayer))
	for _, name := range d.byPlayer {
		out = append(out, d.byName[name])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len is the number of connected agents.
func (d *Directory) Len() int { return len(d.byPlayer) }

func (d *Directory) token(name string, serial uint64) string {
	h, _ := blake2b.New256(d.key) // key length checked in NewDirectory
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], serial)
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}
