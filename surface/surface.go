// Package surface models the reflecting surface of a thick optical element in
// its local frame: X tangential, Y sagittal, Z along the central normal.
//
// Every surface passes through the local origin with normal +Z there.  The
// set of shapes is closed: Toroid, Ellipsoid and Planar.
package surface

import (
	"math"

	"row-major/thickmirror/contact"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/ray"
	"row-major/thickmirror/vmath/vec3"
)

type Surface interface {
	// Intersect finds where the query ray meets the surface, choosing among
	// multiple roots the one nearest the element center.  It fails with
	// opterr.NoIntersection when there is no root inside the query segment.
	Intersect(query ray.RaySegment) (contact.Contact, error)

	// NormalAt is the unit normal at the surface point above local transverse
	// coordinates (x, y).  Components are NaN off the surface's domain.
	NormalAt(x, y float64) vec3.T

	// InAperture tests local transverse coordinates against the footprint.
	InAperture(x, y float64) bool

	Aperture() Aperture

	// Radii are the tangential and sagittal radii of curvature at the center.
	// Flat directions report +Inf.
	Radii() (tangential, sagittal float64)
}

type ApertureShape uint8

const (
	Rectangular ApertureShape = 1
	Elliptical  ApertureShape = 2
)

func (s ApertureShape) String() string {
	switch s {
	case Rectangular:
		return "rectangular"
	case Elliptical:
		return "elliptical"
	}
	return "unknown"
}

// Aperture is the footprint of the element in local transverse coordinates.
// The boundary is part of the aperture.
type Aperture struct {
	HalfTangential float64
	HalfSagittal   float64
	Shape          ApertureShape
}

func NewAperture(halfTangential, halfSagittal float64, shape ApertureShape) (Aperture, error) {
	if !(halfTangential > 0) || !(halfSagittal > 0) {
		return Aperture{}, opterr.Newf(opterr.InvalidParameter, "aperture half-widths must be positive, got %v x %v", halfTangential, halfSagittal)
	}
	if shape != Rectangular && shape != Elliptical {
		return Aperture{}, opterr.Newf(opterr.InvalidParameter, "unknown aperture shape %d", shape)
	}
	return Aperture{
		HalfTangential: halfTangential,
		HalfSagittal:   halfSagittal,
		Shape:          shape,
	}, nil
}

func (a Aperture) Contains(x, y float64) bool {
	if a.Shape == Elliptical {
		u := x / a.HalfTangential
		v := y / a.HalfSagittal
		return u*u+v*v <= 1
	}
	return math.Abs(x) <= a.HalfTangential && math.Abs(y) <= a.HalfSagittal
}

// Corners are the four footprint corners in the local frame, on the plane
// z = 0.
func (a Aperture) Corners() [4]vec3.T {
	h1, h2 := a.HalfTangential, a.HalfSagittal
	return [4]vec3.T{
		{-h1, -h2, 0},
		{h1, -h2, 0},
		{-h1, h2, 0},
		{h1, h2, 0},
	}
}

// solveQuadratic returns the real roots of a t^2 + b t + c = 0 using the
// cancellation-free form.  ok is false when there is no real root.
func solveQuadratic(a, b, c float64) (t1, t2 float64, ok bool) {
	if a == 0 {
		if b == 0 {
			return 0, 0, false
		}
		t := -c / b
		return t, t, true
	}

	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, 0, false
	}
	sq := math.Sqrt(disc)

	var q float64
	if b >= 0 {
		q = -0.5 * (b + sq)
	} else {
		q = -0.5 * (b - sq)
	}

	t1 = q / a
	if q == 0 {
		return t1, t1, true
	}
	t2 = c / q
	return t1, t2, true
}

// nearestTo picks, of two ray parameters, the one whose point lies closer to
// ref.
func nearestTo(r ray.Ray, t1, t2 float64, ref vec3.T) float64 {
	d1 := vec3.SubVV(r.Eval(t1), ref).Norm()
	d2 := vec3.SubVV(r.Eval(t2), ref).Norm()
	if d2 < d1 {
		return t2
	}
	return t1
}

func nanVec() vec3.T {
	return vec3.T{math.NaN(), math.NaN(), math.NaN()}
}

func missf(format string, args ...interface{}) error {
	return opterr.Newf(opterr.NoIntersection, format, args...)
}
