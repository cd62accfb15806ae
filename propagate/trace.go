package propagate

import (
	"math"

	"row-major/thickmirror/contact"
	"row-major/thickmirror/mirror"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/ray"
	"row-major/thickmirror/vmath/vec2"
	"row-major/thickmirror/vmath/vec3"
)

// Setup is the per-call geometry shared by every traced sample.
type Setup struct {
	// Beam-frame longitudinal position of the ray origins.
	StartZ float64

	// Where the central ray meets the surface, local frame.  Output
	// coordinates are measured from here.
	CenterHit vec3.T

	// Plane the reflected rays are stopped on, local frame.
	OutPlane ray.Plane
}

// NewSetup places the input and output planes of elem according to its
// in/out treatment.
func NewSetup(elem *mirror.Element) (*Setup, error) {
	f := elem.Frame()
	extIn, extOut := elem.Extents()
	center := f.Center()

	from := f.PointToLocal(vec3.T{center[0], center[1], -extIn})
	c, err := elem.Surface().Intersect(ray.RaySegment{
		TheRay:     ray.Ray{Point: from, Slope: elem.InputAxis()},
		TheSegment: ray.FullSpan(),
	})
	if err != nil {
		return nil, opterr.New(opterr.NoOpticalAxis, "element center is not on the input axis", err)
	}

	s := &Setup{
		CenterHit: c.P,
		OutPlane:  ray.Plane{Point: c.P, Normal: elem.OutputAxis()},
	}
	if elem.Params().TreatInOut != mirror.TreatAtCenter {
		s.StartZ = -extIn
		s.OutPlane.Point = vec3.AddVV(c.P, vec3.MulVS(elem.OutputAxis(), extOut))
	}
	return s, nil
}

// Trace is the geometric history of one ray through the element.
type Trace struct {
	// Incoming and reflected unit directions, local frame.
	In, Out vec3.T

	// Surface hit, local frame.
	Hit contact.Contact

	// Signed path lengths from the origin to the surface and from the surface
	// to the output plane.
	PathBefore, PathAfter float64

	// Transverse position on the output plane in the output beam basis.
	Coord vec2.T
}

// OpticalPath is the total path length of the ray.
func (t *Trace) OpticalPath() float64 {
	return t.PathBefore + t.PathAfter
}

// TraceRay follows the ray leaving input mesh point (x, z) along the local
// wavefront normal, given the curvature radii (rx, rz) and centers
// (xc, zc) of the input wavefront.  Rays that miss the surface or land
// outside the aperture return NoIntersection or OutOfAperture.
func TraceRay(elem *mirror.Element, setup *Setup, x, z, rx, rz, xc, zc float64) (Trace, error) {
	f := elem.Frame()

	tanX := (x - xc) / rx
	tanZ := (z - zc) / rz
	long2 := 1 - tanX*tanX - tanZ*tanZ
	if !(long2 > 0) {
		return Trace{}, opterr.Newf(opterr.NoIntersection, "wavefront at (%v, %v) does not propagate forward", x, z)
	}

	r := ray.Ray{
		Point: f.PointToLocal(vec3.T{x, z, setup.StartZ}),
		Slope: f.VectorToLocal(vec3.T{tanX, tanZ, math.Sqrt(long2)}),
	}

	c, err := elem.Surface().Intersect(ray.RaySegment{TheRay: r, TheSegment: ray.FullSpan()})
	if err != nil {
		return Trace{}, err
	}
	if !elem.Surface().InAperture(c.P[0], c.P[1]) {
		return Trace{}, opterr.Newf(opterr.OutOfAperture, "hit (%v, %v) is outside the aperture", c.P[0], c.P[1])
	}

	t := Trace{
		In:         r.Slope,
		Hit:        c,
		PathBefore: vec3.IProd(vec3.SubVV(c.P, r.Point), r.Slope),
		Out:        vec3.Normalize(vec3.Reflect(r.Slope, c.N)),
	}

	_, at, ok := ray.IntersectPlane(ray.Ray{Point: c.P, Slope: t.Out}, setup.OutPlane)
	if !ok {
		return Trace{}, opterr.Newf(opterr.NoIntersection, "reflected ray from (%v, %v) runs parallel to the output plane", c.P[0], c.P[1])
	}
	t.PathAfter = vec3.IProd(vec3.SubVV(at, c.P), t.Out)

	rel := f.VectorToBeam(vec3.SubVV(at, setup.CenterHit))
	hor, ver := elem.OutputBasis()
	t.Coord = vec2.T{vec3.IProd(rel, hor), vec3.IProd(rel, ver)}
	return t, nil
}

// Radii are the wavefront curvature radii on the input and output planes.
type Radii struct {
	XIn, ZIn, XOut, ZOut float64
}

// AmplitudeFactor is the geometric change of field amplitude along a ray,
// from the curvature radii corrected by the ray's two path segments.  It is
// 1 when a corrected or output radius vanishes.
func AmplitudeFactor(r Radii, before, after float64) float64 {
	xInCor := r.XIn + before
	zInCor := r.ZIn + before
	xOutCor := r.XOut - after
	zOutCor := r.ZOut - after
	if xInCor == 0 || zInCor == 0 || xOutCor == 0 || zOutCor == 0 || r.XOut == 0 || r.ZOut == 0 {
		return 1
	}

	e2 := r.XIn * xOutCor / (xInCor * r.XOut)
	e2 *= r.ZIn * zOutCor / (zInCor * r.ZOut)
	return math.Sqrt(math.Abs(e2))
}
