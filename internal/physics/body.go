package physics

import (
	"errors"
	"fmt"

	"github.com/solarlune/resolv"
)

var (
	// ErrNotFound is returned for a handle that was never added or has been
	// removed. A stale handle is always an error, never a no-op.
	ErrNotFound = errors.New("physics: body not found")
	// ErrInvalidBody rejects a shape or state the adapter cannot simulate.
	ErrInvalidBody = errors.New("physics: invalid body")
)

// Handle identifies a body. Handles are never reused; zero is never valid.
type Handle uint32

// Kind tags a body with its game role. It only feeds broadphase tags and
// collision reports; the adapter treats kinds alike.
type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindProjectile
	KindObstacle
	KindBoundary
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindProjectile:
		return "projectile"
	case KindObstacle:
		return "obstacle"
	case KindBoundary:
		return "boundary"
	}
	return "unknown"
}

type ShapeType uint8

const (
	ShapeCircle ShapeType = iota
	ShapeWall
)

// Shape is either a circle or a one-sided wall segment.
type Shape struct {
	Type   ShapeType
	Radius float64
	A, B   Vec
	Normal Vec // walls only: unit normal pointing into the playable side
}

func Circle(radius float64) Shape {
	return Shape{Type: ShapeCircle, Radius: radius}
}

// Wall builds a segment from a to b that pushes bodies towards inward.
func Wall(a, b, inward Vec) Shape {
	return Shape{Type: ShapeWall, A: a, B: b, Normal: inward.Normalize()}
}

// ArenaWalls returns the four walls enclosing a width x height rectangle,
// ordered top, bottom, left, right.
func ArenaWalls(width, height float64) []Shape {
	return []Shape{
		Wall(V(0, 0), V(width, 0), V(0, 1)),
		Wall(V(0, height), V(width, height), V(0, -1)),
		Wall(V(0, 0), V(0, height), V(1, 0)),
		Wall(V(width, 0), V(width, height), V(-1, 0)),
	}
}

// BodyState is the initial state passed to AddBody and the value State
// returns.
type BodyState struct {
	Position        Vec
	Velocity        Vec
	Angle           float64
	AngularVelocity float64
	Mass            float64 // ignored for static bodies
	Elasticity      float64
	MaxSpeed        float64 // 0 means unlimited
	Static          bool
	// Sensor bodies report contacts but never push or get pushed.
	Sensor bool
}

type body struct {
	handle Handle
	kind   Kind
	shape  Shape
	state  BodyState
	force  Vec
	torque float64
	obj    *resolv.Object
}

// MomentForCircle is the moment of inertia of a solid disc.
func MomentForCircle(mass, radius float64) float64 {
	return 0.5 * mass * radius * radius
}

func (b *body) inertia() float64 {
	return MomentForCircle(b.state.Mass, b.shape.Radius)
}

func validate(shape Shape, st BodyState) error {
	switch shape.Type {
	case ShapeCircle:
		if shape.Radius <= 0 {
			return fmt.Errorf("%w: circle radius %g", ErrInvalidBody, shape.Radius)
		}
		if !st.Static && st.Mass <= 0 {
			return fmt.Errorf("%w: dynamic body mass %g", ErrInvalidBody, st.Mass)
		}
	case ShapeWall:
		if !st.Static {
			return fmt.Errorf("%w: walls must be static", ErrInvalidBody)
		}
		if shape.A == shape.B || shape.Normal.IsZero() {
			return fmt.Errorf("%w: degenerate wall", ErrInvalidBody)
		}
	default:
		return fmt.Errorf("%w: shape type %d", ErrInvalidBody, shape.Type)
	}
	return nil
}
