package physics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/solarlune/resolv"
)

// Config sizes the simulated area and sets global damping.
type Config struct {
	Width, Height float64
	CellSize      int
	// LinearDamping is the fraction of velocity kept after one second.
	LinearDamping float64
	// AngularDamping is the fraction of spin lost per second.
	AngularDamping float64
}

// Collision is one contact found during Step. A is always the lower handle.
type Collision struct {
	A, B         Handle
	KindA, KindB Kind
	Normal       Vec     // unit normal from A towards B
	Speed        float64 // relative speed before the contact was resolved
}

// Other returns the handle paired with h, and whether h takes part at all.
func (c Collision) Other(h Handle) (Handle, Kind, bool) {
	switch h {
	case c.A:
		return c.B, c.KindB, true
	case c.B:
		return c.A, c.KindA, true
	}
	return 0, 0, false
}

// World is a 2D rigid-body world of circles and static walls. Broadphase runs
// on a resolv.Space; narrow phase and response are exact circle math.
// Accessed only from the game loop goroutine.
type World struct {
	cfg    Config
	space  *resolv.Space
	bodies map[Handle]*body
	order  []Handle // ascending
	next   Handle
}

func NewWorld(cfg Config) *World {
	if cfg.CellSize <= 0 {
		cfg.CellSize = 32
	}
	if cfg.LinearDamping <= 0 {
		cfg.LinearDamping = 1
	}
	w := int(math.Ceil(cfg.Width))
	h := int(math.Ceil(cfg.Height))
	return &World{
		cfg:    cfg,
		space:  resolv.NewSpace(w, h, cfg.CellSize, cfg.CellSize),
		bodies: make(map[Handle]*body, 64),
		next:   1,
	}
}

// AddBody inserts a body and returns its handle.
func (w *World) AddBody(kind Kind, shape Shape, st BodyState) (Handle, error) {
	if err := validate(shape, st); err != nil {
		return 0, err
	}
	b := &body{
		handle: w.next,
		kind:   kind,
		shape:  shape,
		state:  st,
	}
	w.next++
	x, y, bw, bh := w.bounds(b)
	b.obj = resolv.NewObject(x, y, bw, bh, kind.String())
	b.obj.Data = b
	w.space.Add(b.obj)

	w.bodies[b.handle] = b
	w.order = append(w.order, b.handle)
	return b.handle, nil
}

// RemoveBody detaches a body from the world.
func (w *World) RemoveBody(h Handle) error {
	b, err := w.get(h)
	if err != nil {
		return err
	}
	w.space.Remove(b.obj)
	delete(w.bodies, h)
	i := sort.Search(len(w.order), func(i int) bool { return w.order[i] >= h })
	w.order = append(w.order[:i], w.order[i+1:]...)
	return nil
}

// Has reports whether h names a live body.
func (w *World) Has(h Handle) bool {
	_, ok := w.bodies[h]
	return ok
}

// Len reports the number of live bodies.
func (w *World) Len() int { return len(w.bodies) }

// State returns a copy of the body's current state.
func (w *World) State(h Handle) (BodyState, error) {
	b, err := w.get(h)
	if err != nil {
		return BodyState{}, err
	}
	return b.state, nil
}

// ApplyForce accumulates a force applied over the next Step.
func (w *World) ApplyForce(h Handle, f Vec) error {
	b, err := w.get(h)
	if err != nil {
		return err
	}
	b.force = b.force.Add(f)
	return nil
}

// ApplyTorque accumulates a torque applied over the next Step.
func (w *World) ApplyTorque(h Handle, t float64) error {
	b, err := w.get(h)
	if err != nil {
		return err
	}
	b.torque += t
	return nil
}

func (w *World) SetVelocity(h Handle, v Vec) error {
	b, err := w.get(h)
	if err != nil {
		return err
	}
	b.state.Velocity = v
	return nil
}

func (w *World) SetAngularVelocity(h Handle, av float64) error {
	b, err := w.get(h)
	if err != nil {
		return err
	}
	b.state.AngularVelocity = av
	return nil
}

// SetPosition teleports a body and refreshes its broadphase cells.
func (w *World) SetPosition(h Handle, p Vec) error {
	b, err := w.get(h)
	if err != nil {
		return err
	}
	b.state.Position = p
	w.sync(b)
	return nil
}

// SetStatic freezes or releases a body. Freezing clears its motion.
func (w *World) SetStatic(h Handle, static bool) error {
	b, err := w.get(h)
	if err != nil {
		return err
	}
	if static {
		b.state.Velocity = Vec{}
		b.state.AngularVelocity = 0
		b.force, b.torque = Vec{}, 0
	} else if b.shape.Type == ShapeWall {
		return fmt.Errorf("%w: walls must be static", ErrInvalidBody)
	}
	b.state.Static = static
	return nil
}

// Step advances every dynamic body by exactly dt, resolves contacts and
// returns them. Each pair is reported at most once, ordered by (A, B).
// Accumulated forces and torques are cleared.
func (w *World) Step(dt time.Duration) []Collision {
	sec := dt.Seconds()
	if sec <= 0 {
		return nil
	}
	for _, h := range w.order {
		b := w.bodies[h]
		if b.state.Static {
			continue
		}
		w.integrate(b, sec)
	}

	var out []Collision
	seen := make(map[[2]Handle]struct{})
	for _, h := range w.order {
		a := w.bodies[h]
		if a.state.Static {
			continue
		}
		hits := a.obj.Check(0, 0)
		if hits == nil {
			continue
		}
		for _, o := range hits.Objects {
			b, ok := o.Data.(*body)
			if !ok || b == a {
				continue
			}
			// dynamic pairs are handled from the lower handle
			if !b.state.Static && b.handle < a.handle {
				continue
			}
			if a.state.Sensor && b.state.Sensor {
				continue
			}
			key := [2]Handle{a.handle, b.handle}
			if b.handle < a.handle {
				key = [2]Handle{b.handle, a.handle}
			}
			if _, dup := seen[key]; dup {
				continue
			}
			n, depth, hit := contact(a, b)
			if !hit {
				continue
			}
			seen[key] = struct{}{}
			speed := a.state.Velocity.Sub(b.state.Velocity).Len()
			w.respond(a, b, n, depth)
			out = append(out, newCollision(a, b, n, speed))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

func (w *World) integrate(b *body, sec float64) {
	st := &b.state
	st.Velocity = st.Velocity.Add(b.force.Scale(sec / st.Mass))
	if b.torque != 0 {
		st.AngularVelocity += b.torque * sec / b.inertia()
	}
	b.force, b.torque = Vec{}, 0

	if !st.Sensor {
		st.Velocity = st.Velocity.Scale(math.Pow(w.cfg.LinearDamping, sec))
		st.AngularVelocity *= 1 - w.cfg.AngularDamping*sec
	}
	if st.MaxSpeed > 0 {
		if speed := st.Velocity.Len(); speed > st.MaxSpeed {
			st.Velocity = st.Velocity.Scale(st.MaxSpeed / speed)
		}
	}
	st.Position = st.Position.Add(st.Velocity.Scale(sec))
	st.Angle += st.AngularVelocity * sec
	w.sync(b)
}

// contact tests dynamic circle a against b and returns the unit normal from
// a to b and the penetration depth.
func contact(a, b *body) (Vec, float64, bool) {
	ra := a.shape.Radius
	switch b.shape.Type {
	case ShapeCircle:
		d := b.state.Position.Sub(a.state.Position)
		dist := d.Len()
		depth := ra + b.shape.Radius - dist
		if depth <= 0 {
			return Vec{}, 0, false
		}
		if dist == 0 {
			return Vec{X: 1}, depth, true
		}
		return d.Scale(1 / dist), depth, true
	case ShapeWall:
		wall := b.shape
		s := a.state.Position.Sub(wall.A).Dot(wall.Normal)
		if s >= ra {
			return Vec{}, 0, false
		}
		// must lie alongside the segment, not past its ends
		along := wall.B.Sub(wall.A)
		t := a.state.Position.Sub(wall.A).Dot(along) / along.LenSq()
		margin := ra / along.Len()
		if t < -margin || t > 1+margin {
			return Vec{}, 0, false
		}
		return wall.Normal.Neg(), ra - s, true
	}
	return Vec{}, 0, false
}

func (w *World) respond(a, b *body, n Vec, depth float64) {
	if a.state.Sensor || b.state.Sensor {
		return
	}
	e := a.state.Elasticity * b.state.Elasticity
	if b.state.Static {
		a.state.Position = a.state.Position.Sub(n.Scale(depth))
		if vn := a.state.Velocity.Dot(n); vn > 0 {
			a.state.Velocity = a.state.Velocity.Sub(n.Scale((1 + e) * vn))
		}
		w.sync(a)
		return
	}

	ia, ib := 1/a.state.Mass, 1/b.state.Mass
	total := ia + ib
	a.state.Position = a.state.Position.Sub(n.Scale(depth * ia / total))
	b.state.Position = b.state.Position.Add(n.Scale(depth * ib / total))
	if vn := a.state.Velocity.Sub(b.state.Velocity).Dot(n); vn > 0 {
		j := (1 + e) * vn / total
		a.state.Velocity = a.state.Velocity.Sub(n.Scale(j * ia))
		b.state.Velocity = b.state.Velocity.Add(n.Scale(j * ib))
	}
	w.sync(a)
	w.sync(b)
}

func newCollision(a, b *body, n Vec, speed float64) Collision {
	if b.handle < a.handle {
		a, b = b, a
		n = n.Neg()
	}
	return Collision{A: a.handle, B: b.handle, KindA: a.kind, KindB: b.kind, Normal: n, Speed: speed}
}

// bounds computes the broadphase box, clamped into the space so a body that
// slipped outside still shares cells with the walls.
func (w *World) bounds(b *body) (x, y, bw, bh float64) {
	switch b.shape.Type {
	case ShapeWall:
		x = math.Min(b.shape.A.X, b.shape.B.X)
		y = math.Min(b.shape.A.Y, b.shape.B.Y)
		bw = math.Max(math.Abs(b.shape.B.X-b.shape.A.X), 1)
		bh = math.Max(math.Abs(b.shape.B.Y-b.shape.A.Y), 1)
	default:
		r := b.shape.Radius
		x, y = b.state.Position.X-r, b.state.Position.Y-r
		bw, bh = 2*r, 2*r
	}
	x = clamp(x, 0, math.Max(w.cfg.Width-bw, 0))
	y = clamp(y, 0, math.Max(w.cfg.Height-bh, 0))
	return x, y, bw, bh
}

func (w *World) sync(b *body) {
	x, y, _, _ := w.bounds(b)
	b.obj.X, b.obj.Y = x, y
	b.obj.Update()
}

func (w *World) get(h Handle) (*body, error) {
	b, ok := w.bodies[h]
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", ErrNotFound, h)
	}
	return b, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
