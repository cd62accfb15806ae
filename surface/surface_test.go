package surface

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"row-major/thickmirror/affinetransform"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/ray"
	"row-major/thickmirror/vmath/vec3"
)

func mustAperture(t *testing.T, h1, h2 float64, shape ApertureShape) Aperture {
	t.Helper()
	a, err := NewAperture(h1, h2, shape)
	if err != nil {
		t.Fatalf("NewAperture: %v", err)
	}
	return a
}

func vertical(x, y float64) ray.RaySegment {
	return ray.RaySegment{
		TheRay: ray.Ray{
			Point: vec3.T{x, y, -1},
			Slope: vec3.UnitZ,
		},
		TheSegment: ray.FullSpan(),
	}
}

func TestApertureBoundaryIsInside(t *testing.T) {
	rect := mustAperture(t, 0.1, 0.02, Rectangular)
	ell := mustAperture(t, 0.1, 0.02, Elliptical)

	cases := []struct {
		name string
		apt  Aperture
		x, y float64
		want bool
	}{
		{"rect corner", rect, 0.1, 0.02, true},
		{"rect edge", rect, -0.1, 0, true},
		{"rect outside x", rect, 0.1000001, 0, false},
		{"rect outside y", rect, 0, -0.0200001, false},
		{"ellipse tangential vertex", ell, 0.1, 0, true},
		{"ellipse sagittal vertex", ell, 0, -0.02, true},
		{"ellipse corner", ell, 0.1, 0.02, false},
		{"ellipse interior", ell, 0.05, 0.01, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.apt.Contains(tc.x, tc.y); got != tc.want {
				t.Errorf("Contains(%v, %v) = %v, want %v", tc.x, tc.y, got, tc.want)
			}
		})
	}
}

func TestNewApertureRejectsBadInput(t *testing.T) {
	if _, err := NewAperture(0, 1, Rectangular); !errors.Is(err, opterr.ErrInvalidParameter) {
		t.Errorf("zero half-width: got %v, want InvalidParameter", err)
	}
	if _, err := NewAperture(1, 1, 3); !errors.Is(err, opterr.ErrInvalidParameter) {
		t.Errorf("bad shape: got %v, want InvalidParameter", err)
	}
}

func TestPlanarIntersect(t *testing.T) {
	s := NewPlanar(mustAperture(t, 1, 1, Rectangular))

	q := ray.RaySegment{
		TheRay: ray.Ray{
			Point: vec3.T{0.1, 0.2, -2},
			Slope: vec3.Normalize(vec3.T{0.1, 0, 1}),
		},
		TheSegment: ray.FullSpan(),
	}
	c, err := s.Intersect(q)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(c.P[2]) != 0 {
		t.Errorf("hit z = %v, want 0", c.P[2])
	}
	if got, want := c.P[0], 0.1+0.2; math.Abs(got-want) > 1e-15 {
		t.Errorf("hit x = %v, want %v", got, want)
	}
	if c.N != vec3.UnitZ {
		t.Errorf("normal = %v, want +Z", c.N)
	}

	q.TheRay.Slope = vec3.UnitX
	if _, err := s.Intersect(q); !errors.Is(err, opterr.ErrNoIntersection) {
		t.Errorf("parallel ray: got %v, want NoIntersection", err)
	}

	q.TheRay.Slope = vec3.UnitZ
	q.TheSegment = ray.Span{Lo: 0, Hi: 1}
	if _, err := s.Intersect(q); !errors.Is(err, opterr.ErrNoIntersection) {
		t.Errorf("hit outside segment: got %v, want NoIntersection", err)
	}
}

func TestToroidMatchesHeightFunction(t *testing.T) {
	s, err := NewToroid(2.5, 0.4, mustAperture(t, 0.1, 0.05, Rectangular))
	if err != nil {
		t.Fatalf("NewToroid: %v", err)
	}

	height := func(x, y float64) float64 {
		reff := s.RadTan - (s.RadSag - math.Sqrt(s.RadSag*s.RadSag-y*y))
		return s.RadTan - math.Sqrt(reff*reff-x*x)
	}

	for _, xy := range [][2]float64{{0, 0}, {0.05, 0}, {0, 0.03}, {-0.08, 0.04}, {0.1, -0.05}} {
		c, err := s.Intersect(vertical(xy[0], xy[1]))
		if err != nil {
			t.Fatalf("Intersect(%v): %v", xy, err)
		}
		if got, want := c.P[2], height(xy[0], xy[1]); math.Abs(got-want) > 1e-14 {
			t.Errorf("z(%v) = %v, want %v", xy, got, want)
		}
	}

	opt := cmpopts.EquateApprox(0, 1e-15)
	if diff := cmp.Diff(s.NormalAt(0, 0), vec3.UnitZ, opt); diff != "" {
		t.Errorf("center normal; diff (-got +want)\n%s", diff)
	}
}

func TestToroidNormalIsGradient(t *testing.T) {
	s, err := NewToroid(3, 0.7, mustAperture(t, 0.2, 0.2, Rectangular))
	if err != nil {
		t.Fatalf("NewToroid: %v", err)
	}

	// Finite-difference the height along the sample line.
	const h = 1e-6
	z := func(x, y float64) float64 {
		c, err := s.Intersect(vertical(x, y))
		if err != nil {
			t.Fatalf("Intersect(%v, %v): %v", x, y, err)
		}
		return c.P[2]
	}
	x, y := 0.12, -0.09
	fx := (z(x+h, y) - z(x-h, y)) / (2 * h)
	fy := (z(x, y+h) - z(x, y-h)) / (2 * h)
	want := vec3.Normalize(vec3.T{-fx, -fy, 1})

	if diff := cmp.Diff(s.NormalAt(x, y), want, cmpopts.EquateApprox(0, 1e-8)); diff != "" {
		t.Errorf("NormalAt; diff (-got +want)\n%s", diff)
	}
}

func TestToroidHugeRadiiIsNearlyFlat(t *testing.T) {
	s, err := NewToroid(1e12, 1e12, mustAperture(t, 0.1, 0.1, Rectangular))
	if err != nil {
		t.Fatalf("NewToroid: %v", err)
	}

	q := ray.RaySegment{
		TheRay: ray.Ray{
			Point: vec3.T{0.05, -0.03, -10},
			Slope: vec3.Normalize(vec3.T{0.001, 0.002, 1}),
		},
		TheSegment: ray.FullSpan(),
	}
	c, err := s.Intersect(q)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(c.P[2]) > 1e-13 {
		t.Errorf("hit z = %v, want ~0", c.P[2])
	}
	if math.IsNaN(c.N[0]) || c.N[2] < 1-1e-12 {
		t.Errorf("normal = %v, want ~+Z", c.N)
	}
}

func TestToroidRejectsBadRadii(t *testing.T) {
	apt := mustAperture(t, 1, 1, Rectangular)
	for _, r := range [][2]float64{{0, 1}, {1, -1}, {math.Inf(1), 1}, {1, math.NaN()}} {
		if _, err := NewToroid(r[0], r[1], apt); !errors.Is(err, opterr.ErrInvalidParameter) {
			t.Errorf("NewToroid(%v): got %v, want InvalidParameter", r, err)
		}
	}
}

func TestEllipsoidImagesSourceOntoImage(t *testing.T) {
	p, q, theta := 30.0, 10.0, 0.01
	s, err := NewEllipsoid(p, q, theta, 0.5, mustAperture(t, 0.3, 0.01, Rectangular))
	if err != nil {
		t.Fatalf("NewEllipsoid: %v", err)
	}

	a, _, b := s.SemiAxes()
	ce := math.Sqrt(a*a - b*b)
	src := affinetransform.TransformPoint(s.ellToLocal, vec3.T{-ce, 0, 0})
	img := affinetransform.TransformPoint(s.ellToLocal, vec3.T{ce, 0, 0})

	if got := src.Norm(); math.Abs(got-p) > 1e-9 {
		t.Errorf("source distance = %v, want %v", got, p)
	}
	if got := img.Norm(); math.Abs(got-q) > 1e-9 {
		t.Errorf("image distance = %v, want %v", got, q)
	}
	if src[0] > 0 || img[0] < 0 {
		t.Errorf("source at %v and image at %v; want source upstream along -X", src, img)
	}

	// Any tangential ray from the source focus reflects through the image
	// focus.
	for _, target := range []vec3.T{{0, 0, 0}, {0.2, 0, 0}, {-0.25, 0, 0}} {
		dir := vec3.Normalize(vec3.SubVV(target, src))
		c, err := s.Intersect(ray.RaySegment{
			TheRay:     ray.Ray{Point: src, Slope: dir},
			TheSegment: ray.FullSpan(),
		})
		if err != nil {
			t.Fatalf("Intersect toward %v: %v", target, err)
		}
		// The contact comes back in the local frame.
		if diff := cmp.Diff(c.P, vec3.AddVV(src, vec3.MulVS(dir, c.T)), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("hit point is not on the query ray; diff (-got +want)\n%s", diff)
		}
		if diff := cmp.Diff(c.R.Slope, dir, cmpopts.EquateApprox(0, 1e-14)); diff != "" {
			t.Errorf("contact ray slope; diff (-got +want)\n%s", diff)
		}
		if n := c.N.Norm(); math.Abs(n-1) > 1e-14 {
			t.Errorf("contact normal has norm %v, want 1", n)
		}
		out := vec3.Reflect(dir, c.N)
		toImg := vec3.SubVV(img, c.P)
		miss := vec3.CProd(out, toImg).Norm()
		if miss > 1e-9 {
			t.Errorf("reflection from %v misses the image focus by %v", c.P, miss)
		}
	}

	opt := cmpopts.EquateApprox(0, 1e-14)
	if diff := cmp.Diff(s.NormalAt(0, 0), vec3.UnitZ, opt); diff != "" {
		t.Errorf("pole normal; diff (-got +want)\n%s", diff)
	}
}

func TestEllipsoidTangentialRadius(t *testing.T) {
	p, q, theta := 20.0, 5.0, 0.05
	s, err := NewEllipsoid(p, q, theta, 0.1, mustAperture(t, 0.1, 0.01, Rectangular))
	if err != nil {
		t.Fatalf("NewEllipsoid: %v", err)
	}
	rt, rs := s.Radii()

	// Grazing-incidence mirror equation: 1/p + 1/q = 2/(R sin theta).
	want := 2 * p * q / ((p + q) * math.Sin(theta))
	if math.Abs(rt-want)/want > 1e-12 {
		t.Errorf("tangential radius = %v, want %v", rt, want)
	}
	if rs != 0.1 {
		t.Errorf("sagittal radius = %v, want 0.1", rs)
	}

	// Fit the sampled heights near the pole: z ~ x^2/(2R).
	const h = 1e-3
	c, err := s.Intersect(vertical(h, 0))
	if err != nil {
		t.Fatalf("Intersect: %v", err)
	}
	c2, err := s.Intersect(vertical(-h, 0))
	if err != nil {
		t.Fatalf("Intersect: %v", err)
	}
	got := h * h / (c.P[2] + c2.P[2])
	if math.Abs(got-want)/want > 1e-4 {
		t.Errorf("fitted tangential radius = %v, want %v", got, want)
	}

	// Same for the sagittal direction, which curves much more strongly.
	const hs = 1e-4
	c3, err := s.Intersect(vertical(0, hs))
	if err != nil {
		t.Fatalf("Intersect: %v", err)
	}
	gotSag := hs * hs / (2 * c3.P[2])
	if math.Abs(gotSag-0.1)/0.1 > 1e-4 {
		t.Errorf("fitted sagittal radius = %v, want 0.1", gotSag)
	}
}

func TestEllipsoidRejectsBadParameters(t *testing.T) {
	apt := mustAperture(t, 1, 1, Rectangular)
	cases := []struct {
		name              string
		p, q, theta, rsag float64
	}{
		{"zero source distance", 0, 1, 0.1, 1},
		{"negative image distance", 1, -1, 0.1, 1},
		{"zero angle", 1, 1, 0, 1},
		{"right angle", 1, 1, math.Pi / 2, 1},
		{"zero sagittal radius", 1, 1, 0.1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewEllipsoid(tc.p, tc.q, tc.theta, tc.rsag, apt); !errors.Is(err, opterr.ErrInvalidParameter) {
				t.Errorf("got %v, want InvalidParameter", err)
			}
		})
	}
}
