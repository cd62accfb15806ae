package surface

import (
	"math"

	"row-major/thickmirror/affinetransform"
	"row-major/thickmirror/contact"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/ray"
	"row-major/thickmirror/vmath/mat33"
	"row-major/thickmirror/vmath/vec3"
)

// Ellipsoid is an off-axis patch of an ellipsoid that images a point source
// at distance DistSource before the element onto a point at DistImage after
// it, with grazing angle Theta at the element center.
//
// The tangential section is the ellipse with those foci through the center.
// The sagittal semi-axis is chosen so that the sagittal radius at the center
// equals RadSag.
type Ellipsoid struct {
	DistSource float64
	DistImage  float64
	Theta      float64
	RadSag     float64
	Apert      Aperture

	// Semi-axes along the major axis, the sagittal direction and the minor
	// axis.
	a, c, b float64

	// Pole of the patch in ellipsoid coordinates.
	pole vec3.T

	localToEll affinetransform.AffineTransform
	ellToLocal affinetransform.AffineTransform
}

func NewEllipsoid(distSource, distImage, theta, radSag float64, apert Aperture) (*Ellipsoid, error) {
	if !finitePositive(distSource) || !finitePositive(distImage) {
		return nil, opterr.Newf(opterr.InvalidParameter, "ellipsoid focal distances must be finite and positive, got p=%v q=%v", distSource, distImage)
	}
	if !(theta > 0 && theta < math.Pi/2) {
		return nil, opterr.Newf(opterr.InvalidParameter, "ellipsoid grazing angle must be in (0, pi/2), got %v", theta)
	}
	if !finitePositive(radSag) {
		return nil, opterr.Newf(opterr.InvalidParameter, "ellipsoid sagittal radius must be finite and positive, got %v", radSag)
	}

	p, q := distSource, distImage
	a := (p + q) / 2
	b := math.Sqrt(p*q) * math.Sin(theta)
	ce := math.Sqrt(math.Max(a*a-b*b, 0))

	x0 := 0.0
	if ce > 0 {
		x0 = (p*p - q*q) / (4 * ce)
	}
	z0 := -b * math.Sqrt(math.Max(1-x0*x0/(a*a), 0))

	// Inward normal at the pole becomes local +Z.  Local +X is the tangent
	// that heads toward the image focus.
	gx, gz := x0/(a*a), z0/(b*b)
	g := math.Hypot(gx, gz)
	zAxis := vec3.T{-gx / g, 0, -gz / g}
	xAxis := vec3.T{-zAxis[2], 0, zAxis[0]}
	if xAxis[0] < 0 {
		xAxis = vec3.MulVS(xAxis, -1)
	}
	yAxis := vec3.CProd(zAxis, xAxis)

	// Sagittal curvature of x^2/a^2 + y^2/c^2 + z^2/b^2 = 1 at the pole is
	// 1/(c^2 g).
	g4 := math.Sqrt(x0*x0/(a*a*a*a) + z0*z0/(b*b*b*b))
	c := math.Sqrt(radSag / g4)

	pole := vec3.T{x0, 0, z0}
	localToEll := affinetransform.AffineTransform{
		Linear: mat33.FromColumns(xAxis, yAxis, zAxis),
		Offset: pole,
	}

	return &Ellipsoid{
		DistSource: distSource,
		DistImage:  distImage,
		Theta:      theta,
		RadSag:     radSag,
		Apert:      apert,
		a:          a,
		c:          c,
		b:          b,
		pole:       pole,
		localToEll: localToEll,
		ellToLocal: localToEll.InvertRigid(),
	}, nil
}

// SemiAxes reports the ellipsoid semi-axes: major, sagittal, minor.
func (s *Ellipsoid) SemiAxes() (major, sagittal, minor float64) {
	return s.a, s.c, s.b
}

func (s *Ellipsoid) quadric(v vec3.T) vec3.T {
	return vec3.T{v[0] / (s.a * s.a), v[1] / (s.c * s.c), v[2] / (s.b * s.b)}
}

func (s *Ellipsoid) Intersect(query ray.RaySegment) (contact.Contact, error) {
	er := query.TheRay.Transform(s.localToEll)
	o, d := er.Point, er.Slope

	qa := vec3.IProd(d, s.quadric(d))
	qb := 2 * vec3.IProd(o, s.quadric(d))
	qc := vec3.IProd(o, s.quadric(o)) - 1

	t1, t2, ok := solveQuadratic(qa, qb, qc)
	if !ok {
		return contact.ContactNaN(), missf("ray misses the ellipsoid")
	}
	t := nearestTo(er, t1, t2, s.pole)
	if !query.TheSegment.Contains(t) {
		return contact.ContactNaN(), missf("ellipsoid hit at t=%v lies outside the query segment", t)
	}

	hit := er.Eval(t)
	c := contact.Contact{
		T: t,
		R: er,
		P: hit,
		N: vec3.Normalize(vec3.MulVS(s.quadric(hit), -1)),
	}
	// Rigid, so T carries over unchanged.
	return c.Transform(s.ellToLocal), nil
}

func (s *Ellipsoid) NormalAt(x, y float64) vec3.T {
	normalRay := ray.RaySegment{
		TheRay: ray.Ray{
			Point: vec3.T{x, y, 0},
			Slope: vec3.UnitZ,
		},
		TheSegment: ray.FullSpan(),
	}
	c, err := s.Intersect(normalRay)
	if err != nil {
		return nanVec()
	}
	return c.N
}

func (s *Ellipsoid) InAperture(x, y float64) bool {
	return s.Apert.Contains(x, y)
}

func (s *Ellipsoid) Aperture() Aperture {
	return s.Apert
}

// Radii reports the tangential radius of the ellipse at the pole and the
// requested sagittal radius.
func (s *Ellipsoid) Radii() (float64, float64) {
	pq := s.DistSource * s.DistImage
	return math.Pow(pq, 1.5) / (s.a * s.b), s.RadSag
}
