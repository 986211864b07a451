package physics

import "math"

// Vec is a 2D vector in arena units (pixels, y down).
type Vec struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

func V(x, y float64) Vec { return Vec{X: x, Y: y} }

// FromAngle returns the unit vector pointing along angle (radians).
func FromAngle(angle float64) Vec {
	return Vec{X: math.Cos(angle), Y: math.Sin(angle)}
}

func (v Vec) Add(o Vec) Vec         { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec         { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(s float64) Vec   { return Vec{v.X * s, v.Y * s} }
func (v Vec) Dot(o Vec) float64     { return v.X*o.X + v.Y*o.Y }
func (v Vec) LenSq() float64        { return v.X*v.X + v.Y*v.Y }
func (v Vec) Len() float64          { return math.Hypot(v.X, v.Y) }
func (v Vec) Dist(o Vec) float64    { return v.Sub(o).Len() }
func (v Vec) IsZero() bool          { return v.X == 0 && v.Y == 0 }
func (v Vec) Neg() Vec              { return Vec{-v.X, -v.Y} }
func (v Vec) Perp() Vec             { return Vec{-v.Y, v.X} }
func (v Vec) Approx(o Vec, eps float64) bool {
	return math.Abs(v.X-o.X) <= eps && math.Abs(v.Y-o.Y) <= eps
}

// Rotate turns v by angle radians.
func (v Vec) Rotate(angle float64) Vec {
	s, c := math.Sincos(angle)
	return Vec{v.X*c - v.Y*s, v.X*s + v.Y*c}
}

// Normalize returns the unit vector of v, or zero for the zero vector.
func (v Vec) Normalize() Vec {
	l := v.Len()
	if l == 0 {
		return Vec{}
	}
	return Vec{v.X / l, v.Y / l}
}

// ClosestOnSegment returns the point of segment a-b nearest to p.
func ClosestOnSegment(p, a, b Vec) Vec {
	ab := b.Sub(a)
	l2 := ab.LenSq()
	if l2 == 0 {
		return a
	}
	t := p.Sub(a).Dot(ab) / l2
	t = math.Max(0, math.Min(1, t))
	return a.Add(ab.Scale(t))
}
