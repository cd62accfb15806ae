package surface

import (
	"math"

	"row-major/thickmirror/contact"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/ray"
	"row-major/thickmirror/vmath/vec3"
)

const (
	toroidMaxIter = 64
	toroidRelTol  = 1e-13
)

// Toroid is the surface swept by a tangential circle of radius RadTan whose
// center rides a sagittal circle of radius RadSag.  Both centers of curvature
// lie on the +Z side.
//
// Height above the local XY plane is
//
//	z(x, y) = Rt - sqrt((Rt - s(y))^2 - x^2),  s(y) = Rs - sqrt(Rs^2 - y^2).
type Toroid struct {
	RadTan float64
	RadSag float64
	Apert  Aperture
}

func NewToroid(radTan, radSag float64, apert Aperture) (*Toroid, error) {
	if !finitePositive(radTan) || !finitePositive(radSag) {
		return nil, opterr.Newf(opterr.InvalidParameter, "toroid radii must be finite and positive, got tangential=%v sagittal=%v", radTan, radSag)
	}
	return &Toroid{
		RadTan: radTan,
		RadSag: radSag,
		Apert:  apert,
	}, nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// sag is the sagittal circle's departure from the plane at y, written to avoid
// cancellation for large radii.
func (s *Toroid) sag(y float64) (float64, bool) {
	w := s.RadSag*s.RadSag - y*y
	if w < 0 {
		return 0, false
	}
	return y * y / (s.RadSag + math.Sqrt(w)), true
}

func (s *Toroid) Intersect(query ray.RaySegment) (contact.Contact, error) {
	r := query.TheRay
	o, d := r.Point, r.Slope

	a := d[0]*d[0] + d[2]*d[2]
	if a == 0 {
		return contact.ContactNaN(), missf("ray runs parallel to the toroid's sagittal axis")
	}

	// Freeze y at the current estimate, solve the tangential circle exactly,
	// then refine y.  The sagittal coupling is weak so this converges in a
	// handful of steps.
	t := 0.0
	if d[2] != 0 {
		t = -o[2] / d[2]
	}
	rt := s.RadTan
	converged := false
	for i := 0; i < toroidMaxIter; i++ {
		y := o[1] + t*d[1]
		sy, ok := s.sag(y)
		if !ok {
			return contact.ContactNaN(), missf("ray leaves the sagittal circle at y=%v", y)
		}

		b := 2*(o[0]*d[0]+o[2]*d[2]) - 2*rt*d[2]
		c := o[0]*o[0] + o[2]*o[2] - 2*o[2]*rt + 2*rt*sy - sy*sy
		t1, t2, ok := solveQuadratic(a, b, c)
		if !ok {
			return contact.ContactNaN(), missf("ray misses the tangential circle")
		}
		next := nearestTo(r, t1, t2, vec3.T{})

		if math.Abs(next-t) <= toroidRelTol*(1+math.Abs(next)) {
			t = next
			converged = true
			break
		}
		t = next
	}
	if !converged {
		return contact.ContactNaN(), missf("toroid intersection did not converge")
	}
	if !query.TheSegment.Contains(t) {
		return contact.ContactNaN(), missf("toroid hit at t=%v lies outside the query segment", t)
	}

	p := r.Eval(t)
	n := s.NormalAt(p[0], p[1])
	if math.IsNaN(n[0]) {
		return contact.ContactNaN(), missf("toroid hit at (%v, %v) has no defined normal", p[0], p[1])
	}
	return contact.Contact{
		T: t,
		R: r,
		P: p,
		N: n,
	}, nil
}

func (s *Toroid) NormalAt(x, y float64) vec3.T {
	w := s.RadSag*s.RadSag - y*y
	if w <= 0 {
		return nanVec()
	}
	sq := math.Sqrt(w)
	reff := s.RadTan - y*y/(s.RadSag+sq)

	u := reff*reff - x*x
	if u <= 0 || reff <= 0 {
		return nanVec()
	}
	su := math.Sqrt(u)

	fx := x / su
	fy := reff * (y / sq) / su
	return vec3.Normalize(vec3.T{-fx, -fy, 1})
}

func (s *Toroid) InAperture(x, y float64) bool {
	return s.Apert.Contains(x, y)
}

func (s *Toroid) Aperture() Aperture {
	return s.Apert
}

func (s *Toroid) Radii() (float64, float64) {
	return s.RadTan, s.RadSag
}
