package world

import "math"

type Vec3 struct {
	X, Y, Z float64
}

// Quat is an orientation quaternion in x,y,z,w order.
type Quat struct {
	X, Y, Z, W float64
}

// Pose is the embodiment's position plus orientation.
type Pose struct {
	Position    Vec3
	Orientation Quat
}

// Rotate applies the quaternion rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	ix := q.W*v.X + q.Y*v.Z - q.Z*v.Y
	iy := q.W*v.Y + q.Z*v.X - q.X*v.Z
	iz := q.W*v.Z + q.X*v.Y - q.Y*v.X
	iw := -q.X*v.X - q.Y*v.Y - q.Z*v.Z
	return Vec3{
		X: ix*q.W - iw*q.X - iy*q.Z + iz*q.Y,
		Y: iy*q.W - iw*q.Y - iz*q.X + ix*q.Z,
		Z: iz*q.W - iw*q.Z - ix*q.Y + iy*q.X,
	}
}

// Forward is the embodiment's facing direction: local +Z rotated into world
// space. The identity orientation faces +Z.
func (q Quat) Forward() Vec3 {
	return q.Rotate(Vec3{Z: 1})
}

// Finite reports whether every component is a finite number.
func (v Vec3) Finite() bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func (q Quat) Finite() bool {
	return finite(q.X) && finite(q.Y) && finite(q.Z) && finite(q.W)
}

func (p Pose) Finite() bool {
	return p.Position.Finite() && p.Orientation.Finite()
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// PlanarNormalize projects v onto the horizontal plane and normalizes it.
// ok is false when the projection is degenerate (near-zero or non-finite);
// callers hold position for that tick instead of steering on noise.
func PlanarNormalize(v Vec3) (Vec3, bool) {
	if !finite(v.X) || !finite(v.Z) {
		return Vec3{}, false
	}
	n := math.Hypot(v.X, v.Z)
	if n < 1e-9 || !finite(n) {
		return Vec3{}, false
	}
	return Vec3{X: v.X / n, Z: v.Z / n}, true
}

// SignedHeadingAngle returns the signed angle in radians from forward to dir,
// both assumed planar and normalized. The sign comes from the vertical
// component of forward x dir: positive means the target is to the left.
func SignedHeadingAngle(forward, dir Vec3) float64 {
	dot := forward.X*dir.X + forward.Z*dir.Z
	crossY := forward.Z*dir.X - forward.X*dir.Z
	return math.Atan2(crossY, dot)
}

// PlanarDistance ignores height, matching how navigation measures arrival.
func PlanarDistance(a, b Vec3) float64 {
	return math.Hypot(b.X-a.X, b.Z-a.Z)
}
