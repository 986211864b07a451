package world

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/arenasim/server/internal/config"
	"github.com/arenasim/server/internal/data"
	"github.com/arenasim/server/internal/physics"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) (*Registry, *physics.World) {
	t.Helper()
	cfg := config.Default()
	phys := physics.NewWorld(physics.Config{
		Width:          cfg.Arena.Width,
		Height:         cfg.Arena.Height,
		CellSize:       cfg.Physics.CellSize,
		LinearDamping:  cfg.Physics.LinearDamping,
		AngularDamping: cfg.Physics.AngularDamping,
	})
	reg, err := NewRegistry(cfg, phys, data.DefaultArena(cfg.Arena.Width, cfg.Arena.Height), rand.New(rand.NewSource(1)), zap.NewNop())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg, phys
}

func TestStaticWorld(t *testing.T) {
	reg, phys := newTestRegistry(t)
	if got := reg.Count(physics.KindBoundary); got != 4 {
		t.Errorf("expected 4 boundaries, got %d", got)
	}
	if got := reg.Count(physics.KindObstacle); got != 8 {
		t.Errorf("expected 8 obstacles, got %d", got)
	}
	if phys.Len() != 12 {
		t.Errorf("expected 12 physics bodies, got %d", phys.Len())
	}
	if err := reg.Verify(); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestCreatePlayerSpawnsApart(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a, err := reg.CreatePlayer("alpha", 0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Position != physics.V(400, 300) {
		t.Errorf("expected first spawn at the centre, got %+v", a.Position)
	}
	if !a.Alive || a.Health != 5 || a.SpawnProtection != 180 {
		t.Errorf("unexpected fresh player %+v", a)
	}
	b, err := reg.CreatePlayer("bravo", 1)
	if err != nil {
		t.Fatal(err)
	}
	if d := a.Position.Dist(b.Position); d < 30 {
		t.Errorf("players spawned overlapping, distance %g", d)
	}
	if _, err := reg.BodyOf(b.ID); err != nil {
		t.Errorf("player has no body: %v", err)
	}
	if err := reg.Verify(); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestRemoveDetachesBodyFirst(t *testing.T) {
	reg, phys := newTestRegistry(t)
	p, _ := reg.CreatePlayer("alpha", 0)
	h, _ := reg.BodyOf(p.ID)
	before := phys.Len()

	if err := reg.Remove(p.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if phys.Has(h) || phys.Len() != before-1 {
		t.Error("physics body outlived its entity")
	}
	if _, err := reg.Player(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup after remove: expected ErrNotFound, got %v", err)
	}
	if err := reg.Remove(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: expected ErrNotFound, got %v", err)
	}
	if err := reg.Verify(); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestStaleGenerationLookup(t *testing.T) {
	reg, _ := newTestRegistry(t)
	old, _ := reg.CreatePlayer("alpha", 0)
	if err := reg.Remove(old.ID); err != nil {
		t.Fatal(err)
	}
	reg.AdvanceGeneration()
	fresh, _ := reg.CreatePlayer("alpha", 0)

	_, err := reg.Player(old.ID)
	if !errors.Is(err, ErrStaleGeneration) || !errors.Is(err, ErrNotFound) {
		t.Errorf("expected a stale-generation NotFound, got %v", err)
	}
	if fresh.ID.Generation() != 1 || fresh.ID == old.ID {
		t.Errorf("expected a new generation-1 id, got %v", fresh.ID)
	}
}

func TestProjectileLifecycle(t *testing.T) {
	reg, phys := newTestRegistry(t)
	p, _ := reg.CreatePlayer("alpha", 3)
	pr, err := reg.CreateProjectile(p.ID, reg.MuzzleState(p))
	if err != nil {
		t.Fatalf("create projectile: %v", err)
	}
	if !pr.Position.Approx(physics.V(420, 300), 1e-9) {
		t.Errorf("expected muzzle at (420,300), got %+v", pr.Position)
	}
	if pr.Velocity != physics.V(200, 0) || pr.Color != 3 || pr.Lifetime != 180 || pr.Damage != 1 {
		t.Errorf("unexpected projectile %+v", pr)
	}
	h, _ := reg.BodyOf(pr.ID)
	if st, _ := phys.State(h); !st.Sensor {
		t.Error("projectile body should be a sensor")
	}

	reg.MarkForRemoval(pr.ID)
	if !pr.Spent {
		t.Error("marking should flag the projectile as spent")
	}
	if reg.Count(physics.KindProjectile) != 1 {
		t.Error("projectile removed before cleanup")
	}
	if err := reg.ECS().FlushDestroyQueue(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if reg.Count(physics.KindProjectile) != 0 || phys.Has(h) {
		t.Error("projectile survived cleanup")
	}

	if _, err := reg.CreateProjectile(pr.ID, reg.MuzzleState(p)); !errors.Is(err, ErrNotFound) {
		t.Errorf("projectile from a non-player: expected ErrNotFound, got %v", err)
	}
}

func TestThrustAndTurn(t *testing.T) {
	reg, phys := newTestRegistry(t)
	p, _ := reg.CreatePlayer("alpha", 0)
	dt := time.Second / 60
	if err := reg.Thrust(p, 1, dt); err != nil {
		t.Fatal(err)
	}
	if err := reg.Turn(p, 1, dt); err != nil {
		t.Fatal(err)
	}
	phys.Step(dt)
	if err := reg.Sync(); err != nil {
		t.Fatal(err)
	}
	// one step of damping at 0.99 per second
	want := 5 * math.Pow(0.99, dt.Seconds())
	if math.Abs(p.Velocity.X-want) > 1e-6 || math.Abs(p.Velocity.Y) > 1e-9 {
		t.Errorf("expected velocity (%g,0), got %+v", want, p.Velocity)
	}
	wantSpin := 0.08 * (1 - 0.1*dt.Seconds())
	if math.Abs(p.AngularVelocity-wantSpin) > 1e-6 {
		t.Errorf("expected angular velocity %g, got %g", wantSpin, p.AngularVelocity)
	}
}

func TestEliminateFreezes(t *testing.T) {
	reg, phys := newTestRegistry(t)
	p, _ := reg.CreatePlayer("alpha", 0)
	p.SpawnTick = 10
	if err := reg.Eliminate(p, 0, 70); err != nil {
		t.Fatal(err)
	}
	if p.Alive || p.SurvivalTicks != 60 {
		t.Errorf("expected eliminated with 60 survival ticks, got alive=%v ticks=%d", p.Alive, p.SurvivalTicks)
	}
	h, _ := reg.BodyOf(p.ID)
	if st, _ := phys.State(h); !st.Static {
		t.Error("eliminated body should be static")
	}
}

func TestInvariantViolations(t *testing.T) {
	reg, phys := newTestRegistry(t)
	if _, _, err := reg.EntityOf(physics.Handle(9999)); !errors.Is(err, ErrInvariant) {
		t.Errorf("unknown handle: expected ErrInvariant, got %v", err)
	}

	p, _ := reg.CreatePlayer("alpha", 0)
	h, _ := reg.BodyOf(p.ID)
	if err := phys.RemoveBody(h); err != nil {
		t.Fatal(err)
	}
	if err := reg.Verify(); !errors.Is(err, ErrInvariant) {
		t.Errorf("verify: expected ErrInvariant, got %v", err)
	}
	if err := reg.Sync(); !errors.Is(err, ErrInvariant) {
		t.Errorf("sync: expected ErrInvariant, got %v", err)
	}
	if err := reg.Remove(p.ID); !errors.Is(err, ErrInvariant) {
		t.Errorf("remove: expected ErrInvariant, got %v", err)
	}
}
