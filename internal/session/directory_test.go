package session

import (
	"errors"
	"testing"

	"github.com/arenasim/server/internal/core/ecs"
	"github.com/arenasim/server/internal/world"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := NewDirectory([]byte("test-key"))
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	return d
}

func TestNormalize(t *testing.T) {
	d := newTestDirectory(t)
	cases := []struct {
		in, want string
	}{
		{"  Alice ", "Alice"},
		{"Ａｌｉｃｅ", "Alice"}, // full-width letters
		{"", "agent-1"},
		{"   ", "agent-2"},
	}
	for _, c := range cases {
		got, err := d.Normalize(c.in)
		if err != nil {
			t.Errorf("normalize %q: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("normalize %q: expected %q, got %q", c.in, c.want, got)
		}
	}
	for _, bad := range []string{"two words", "bell\a"} {
		if _, err := d.Normalize(bad); !errors.Is(err, ErrInvalidName) {
			t.Errorf("normalize %q: expected ErrInvalidName, got %v", bad, err)
		}
	}
}

func TestAttachAndDisconnect(t *testing.T) {
	d := newTestDirectory(t)
	a := d.Claim("alpha")
	b := d.Claim("bravo")
	if a.Color != 0 || b.Color != 1 {
		t.Fatalf("expected colors 0 and 1, got %d and %d", a.Color, b.Color)
	}
	if d.Claim("alpha") != a {
		t.Fatal("claim created a second binding for one name")
	}

	if _, err := d.Attach("alpha", ecs.EntityID(5)); err != nil {
		t.Fatal(err)
	}
	if got, ok := d.ByPlayer(5); !ok || got.Name != "alpha" {
		t.Fatalf("expected alpha for player 5, got %+v", got)
	}
	if a.Token == "" || !a.Connected || d.Len() != 1 {
		t.Fatalf("unexpected binding after attach %+v", a)
	}

	if _, err := d.Disconnect(5); err != nil {
		t.Fatal(err)
	}
	if a.Connected || d.Len() != 0 {
		t.Error("binding still connected")
	}
	if _, ok := d.ByPlayer(5); ok {
		t.Error("player 5 still resolves")
	}
	if _, err := d.Disconnect(5); !errors.Is(err, world.ErrNotFound) {
		t.Errorf("second disconnect: expected ErrNotFound, got %v", err)
	}
	if got := d.Claim("alpha"); got.Color != 0 {
		t.Errorf("color not kept across disconnect: %d", got.Color)
	}
}

func TestTokens(t *testing.T) {
	d := newTestDirectory(t)
	d.Claim("alpha")
	b, _ := d.Attach("alpha", 1)
	first := b.Token

	got, err := d.Resolve(first)
	if err != nil || got.Name != "alpha" {
		t.Fatalf("resolve: %v %+v", err, got)
	}
	if _, err := d.Resolve("nope"); !errors.Is(err, world.ErrNotFound) {
		t.Errorf("unknown token: expected ErrNotFound, got %v", err)
	}

	// a second attach issues a new token and revokes the old one
	d.Attach("alpha", 2)
	if b.Token == first {
		t.Fatal("token not reissued")
	}
	if _, err := d.Resolve(first); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("old token: expected ErrUnknownToken, got %v", err)
	}
	if _, ok := d.ByPlayer(1); ok {
		t.Error("previous player id still bound")
	}

	other, _ := NewDirectory([]byte("other-key"))
	other.Claim("alpha")
	ob, _ := other.Attach("alpha", 2)
	if ob.Token == b.Token {
		t.Error("tokens do not depend on the key")
	}
}

func TestRebindKeepsIdentity(t *testing.T) {
	d := newTestDirectory(t)
	for i, name := range []string{"bravo", "alpha"} {
		d.Claim(name)
		d.Attach(name, ecs.EntityID(i+1))
	}
	token := d.byName["alpha"].Token

	next := ecs.NewEntityID(10, 1)
	if err := d.Rebind("alpha", next); err != nil {
		t.Fatal(err)
	}
	b, ok := d.ByPlayer(next)
	if !ok || b.Name != "alpha" || b.Token != token {
		t.Fatalf("unexpected binding after rebind %+v", b)
	}
	if _, ok := d.ByPlayer(2); ok {
		t.Error("old id still bound")
	}
	if err := d.Rebind("charlie", next); !errors.Is(err, world.ErrNotFound) {
		t.Errorf("rebind unknown: expected ErrNotFound, got %v", err)
	}

	conn := d.Connected()
	if len(conn) != 2 || conn[0].Name != "alpha" || conn[1].Name != "bravo" {
		t.Errorf("expected alpha, bravo; got %d bindings", len(conn))
	}
}
