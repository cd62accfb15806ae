package surface

import (
	"math"

	"row-major/thickmirror/contact"
	"row-major/thickmirror/ray"
	"row-major/thickmirror/vmath/vec3"
)

// Planar is the local plane z = 0.
type Planar struct {
	Apert Aperture
}

func NewPlanar(apert Aperture) *Planar {
	return &Planar{Apert: apert}
}

func (s *Planar) Intersect(query ray.RaySegment) (contact.Contact, error) {
	r := query.TheRay
	if r.Slope[2] == 0 {
		return contact.ContactNaN(), missf("ray runs parallel to the plane")
	}
	t := -r.Point[2] / r.Slope[2]
	if !query.TheSegment.Contains(t) {
		return contact.ContactNaN(), missf("plane hit at t=%v lies outside the query segment", t)
	}
	p := r.Eval(t)
	p[2] = 0
	return contact.Contact{
		T: t,
		R: r,
		P: p,
		N: vec3.UnitZ,
	}, nil
}

func (s *Planar) NormalAt(x, y float64) vec3.T {
	return vec3.UnitZ
}

func (s *Planar) InAperture(x, y float64) bool {
	return s.Apert.Contains(x, y)
}

func (s *Planar) Aperture() Aperture {
	return s.Apert
}

func (s *Planar) Radii() (float64, float64) {
	return math.Inf(1), math.Inf(1)
}
