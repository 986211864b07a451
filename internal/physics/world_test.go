package physics

import (
	"errors"
	"math"
	"testing"
	"time"
)

const step = time.Second / 60

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w := NewWorld(Config{Width: 800, Height: 600, CellSize: 32, LinearDamping: 1})
	for _, s := range ArenaWalls(800, 600) {
		if _, err := w.AddBody(KindBoundary, s, BodyState{Static: true, Elasticity: 1}); err != nil {
			t.Fatalf("add wall: %v", err)
		}
	}
	return w
}

func addCircle(t *testing.T, w *World, kind Kind, r float64, st BodyState) Handle {
	t.Helper()
	if st.Mass == 0 && !st.Static {
		st.Mass = 1
	}
	if st.Elasticity == 0 {
		st.Elasticity = 1
	}
	h, err := w.AddBody(kind, Circle(r), st)
	if err != nil {
		t.Fatalf("add body: %v", err)
	}
	return h
}

func TestStaleHandleIsNotFound(t *testing.T) {
	w := newTestWorld(t)
	h := addCircle(t, w, KindPlayer, 10, BodyState{Position: V(400, 300)})
	if err := w.RemoveBody(h); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := w.RemoveBody(h); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: expected ErrNotFound, got %v", err)
	}
	if err := w.ApplyForce(h, V(1, 0)); !errors.Is(err, ErrNotFound) {
		t.Errorf("apply force: expected ErrNotFound, got %v", err)
	}
	if err := w.SetVelocity(Handle(9999), V(1, 0)); !errors.Is(err, ErrNotFound) {
		t.Errorf("never-added handle: expected ErrNotFound, got %v", err)
	}
	if w.Has(h) {
		t.Error("removed handle still reported present")
	}
}

func TestHandlesNeverReused(t *testing.T) {
	w := newTestWorld(t)
	a := addCircle(t, w, KindProjectile, 4, BodyState{Position: V(100, 100)})
	if err := w.RemoveBody(a); err != nil {
		t.Fatal(err)
	}
	b := addCircle(t, w, KindProjectile, 4, BodyState{Position: V(100, 100)})
	if b == a {
		t.Fatalf("handle %d reused", a)
	}
}

func TestInvalidBodies(t *testing.T) {
	w := newTestWorld(t)
	if _, err := w.AddBody(KindPlayer, Circle(0), BodyState{Mass: 1}); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("zero radius: expected ErrInvalidBody, got %v", err)
	}
	if _, err := w.AddBody(KindPlayer, Circle(5), BodyState{}); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("massless dynamic: expected ErrInvalidBody, got %v", err)
	}
	if _, err := w.AddBody(KindBoundary, Wall(V(0, 0), V(1, 0), V(0, 1)), BodyState{}); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("dynamic wall: expected ErrInvalidBody, got %v", err)
	}
}

func TestForceIntegration(t *testing.T) {
	w := newTestWorld(t)
	h := addCircle(t, w, KindPlayer, 10, BodyState{Position: V(400, 300), Mass: 2})
	// impulse of 5 units of velocity in one step: F = m*dv/dt
	if err := w.ApplyForce(h, V(2*5*60, 0)); err != nil {
		t.Fatal(err)
	}
	w.Step(step)
	st, _ := w.State(h)
	if math.Abs(st.Velocity.X-5) > 1e-6 {
		t.Errorf("expected vx 5, got %g", st.Velocity.X)
	}
	if math.Abs(st.Position.X-(400+5.0/60)) > 1e-6 {
		t.Errorf("expected x %g, got %g", 400+5.0/60, st.Position.X)
	}

	// forces do not carry over
	w.Step(step)
	st, _ = w.State(h)
	if math.Abs(st.Velocity.X-5) > 1e-6 {
		t.Errorf("force leaked into the next step: vx %g", st.Velocity.X)
	}
}

func TestTorqueIntegration(t *testing.T) {
	w := newTestWorld(t)
	h := addCircle(t, w, KindPlayer, 10, BodyState{Position: V(400, 300), Mass: 1})
	inertia := MomentForCircle(1, 10)
	if err := w.ApplyTorque(h, 0.08*inertia*60); err != nil {
		t.Fatal(err)
	}
	w.Step(step)
	st, _ := w.State(h)
	if math.Abs(st.AngularVelocity-0.08) > 1e-6 {
		t.Errorf("expected angular velocity 0.08, got %g", st.AngularVelocity)
	}
}

func TestMaxSpeedClamp(t *testing.T) {
	w := newTestWorld(t)
	h := addCircle(t, w, KindPlayer, 10, BodyState{Position: V(400, 300), Velocity: V(300, 400), MaxSpeed: 100})
	w.Step(step)
	st, _ := w.State(h)
	if got := st.Velocity.Len(); math.Abs(got-100) > 1e-6 {
		t.Errorf("expected speed clamped to 100, got %g", got)
	}
}

func TestBoundaryReflects(t *testing.T) {
	w := newTestWorld(t)
	h := addCircle(t, w, KindPlayer, 10, BodyState{Position: V(11, 300), Velocity: V(-120, 0)})
	cols := w.Step(step)
	if len(cols) != 1 {
		t.Fatalf("expected one boundary contact, got %d", len(cols))
	}
	if _, kind, ok := cols[0].Other(h); !ok || kind != KindBoundary {
		t.Errorf("expected contact with a boundary, got %+v", cols[0])
	}
	st, _ := w.State(h)
	if st.Velocity.X != 120 {
		t.Errorf("expected elastic reversal to vx 120, got %g", st.Velocity.X)
	}
	if st.Position.X < 10-1e-6 {
		t.Errorf("body left inside the wall at x %g", st.Position.X)
	}
}

func TestObstacleBlocks(t *testing.T) {
	w := newTestWorld(t)
	obs, err := w.AddBody(KindObstacle, Circle(40), BodyState{Position: V(400, 300), Static: true, Elasticity: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	h := addCircle(t, w, KindPlayer, 15, BodyState{Position: V(400-56, 300), Velocity: V(90, 0)})
	cols := w.Step(step)
	if len(cols) != 1 || cols[0].A != obs || cols[0].B != h {
		t.Fatalf("expected one obstacle contact ordered (obstacle, player), got %+v", cols)
	}
	if cols[0].Speed != 90 {
		t.Errorf("expected impact speed 90, got %g", cols[0].Speed)
	}
	st, _ := w.State(h)
	if gap := st.Position.Dist(V(400, 300)); gap < 55-1e-6 {
		t.Errorf("player penetrates obstacle: centre distance %g", gap)
	}
	if st.Velocity.X >= 0 {
		t.Errorf("expected player to bounce back, vx %g", st.Velocity.X)
	}
	ost, _ := w.State(obs)
	if ost.Position != V(400, 300) {
		t.Errorf("obstacle moved to %+v", ost.Position)
	}
}

func TestSensorReportsWithoutResponse(t *testing.T) {
	w := newTestWorld(t)
	p := addCircle(t, w, KindPlayer, 15, BodyState{Position: V(400, 300)})
	proj := addCircle(t, w, KindProjectile, 4, BodyState{Position: V(420, 300), Velocity: V(-200, 0), Sensor: true})
	cols := w.Step(step)
	if len(cols) != 1 {
		t.Fatalf("expected one contact, got %d", len(cols))
	}
	if other, kind, ok := cols[0].Other(p); !ok || other != proj || kind != KindProjectile {
		t.Errorf("unexpected contact %+v", cols[0])
	}
	pst, _ := w.State(p)
	if !pst.Velocity.IsZero() {
		t.Errorf("sensor pushed the player: %+v", pst.Velocity)
	}
	jst, _ := w.State(proj)
	if jst.Velocity != V(-200, 0) {
		t.Errorf("sensor was deflected: %+v", jst.Velocity)
	}
}

func TestDynamicPairReportedOnce(t *testing.T) {
	w := newTestWorld(t)
	a := addCircle(t, w, KindPlayer, 15, BodyState{Position: V(400, 300), Velocity: V(50, 0)})
	b := addCircle(t, w, KindPlayer, 15, BodyState{Position: V(428, 300), Velocity: V(-50, 0)})
	cols := w.Step(step)
	if len(cols) != 1 {
		t.Fatalf("expected a single pair contact, got %d", len(cols))
	}
	if cols[0].A != a || cols[0].B != b {
		t.Errorf("expected (%d,%d), got (%d,%d)", a, b, cols[0].A, cols[0].B)
	}
	ast, _ := w.State(a)
	bst, _ := w.State(b)
	if ast.Velocity.X >= 0 || bst.Velocity.X <= 0 {
		t.Errorf("expected the bodies to separate, got %g and %g", ast.Velocity.X, bst.Velocity.X)
	}
}

func TestStaticBodyDoesNotMove(t *testing.T) {
	w := newTestWorld(t)
	h := addCircle(t, w, KindPlayer, 15, BodyState{Position: V(300, 300), Velocity: V(50, 50)})
	if err := w.SetStatic(h, true); err != nil {
		t.Fatal(err)
	}
	if err := w.ApplyForce(h, V(100, 0)); err != nil {
		t.Fatal(err)
	}
	w.Step(step)
	st, _ := w.State(h)
	if st.Position != V(300, 300) || !st.Velocity.IsZero() {
		t.Errorf("frozen body moved: %+v", st)
	}
}

func TestZeroStep(t *testing.T) {
	w := newTestWorld(t)
	h := addCircle(t, w, KindPlayer, 15, BodyState{Position: V(300, 300), Velocity: V(50, 0)})
	if cols := w.Step(0); cols != nil {
		t.Errorf("expected no contacts, got %v", cols)
	}
	st, _ := w.State(h)
	if st.Position != V(300, 300) {
		t.Errorf("zero step moved the body to %+v", st.Position)
	}
}
