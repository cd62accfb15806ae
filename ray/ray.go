package ray

import (
	"math"

	"row-major/thickmirror/affinetransform"
	"row-major/thickmirror/vmath/vec3"
)

type Span struct {
	Lo, Hi float64
}

// FullSpan accepts every parameter value.
func FullSpan() Span {
	return Span{math.Inf(-1), math.Inf(1)}
}

func (s Span) Contains(t float64) bool {
	return s.Lo <= t && t <= s.Hi
}

type Ray struct {
	Point vec3.T
	Slope vec3.T
}

func (r *Ray) Eval(t float64) vec3.T {
	return vec3.T{
		r.Point[0] + t*r.Slope[0],
		r.Point[1] + t*r.Slope[1],
		r.Point[2] + t*r.Slope[2],
	}
}

// Transform maps the ray's point as a point and its slope as a free vector.
// The slope is not renormalized; callers using rigid transforms keep unit
// slopes unit.
func (r *Ray) Transform(a affinetransform.AffineTransform) Ray {
	return Ray{
		Point: affinetransform.TransformPoint(a, r.Point),
		Slope: affinetransform.TransformVector(a, r.Slope),
	}
}

type RaySegment struct {
	TheRay     Ray
	TheSegment Span
}

// Plane is given by a point on it and its normal.
type Plane struct {
	Point  vec3.T
	Normal vec3.T
}

// IntersectPlane returns the ray parameter and point where the line through r
// meets p.  ok is false when the line is parallel to the plane.
func IntersectPlane(r Ray, p Plane) (t float64, at vec3.T, ok bool) {
	den := vec3.IProd(r.Slope, p.Normal)
	if den == 0 {
		return math.NaN(), vec3.T{}, false
	}
	t = vec3.IProd(vec3.SubVV(p.Point, r.Point), p.Normal) / den
	return t, r.Eval(t), true
}
