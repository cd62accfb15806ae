package propagate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"row-major/thickmirror/mirror"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/reflectivity"
	"row-major/thickmirror/resample"
	"row-major/thickmirror/surface"
	"row-major/thickmirror/vmath/vec2"
	"row-major/thickmirror/vmath/vec3"
	"row-major/thickmirror/wavefront"
)

const halfSize = 0.01

func planarElement(t *testing.T, p mirror.Params) *mirror.Element {
	t.Helper()
	apt, err := surface.NewAperture(halfSize, halfSize, surface.Rectangular)
	require.NoError(t, err)
	if p.Method == 0 {
		p.Method = mirror.MethodRayTrace
	}
	if p.Tangent == (vec2.T{}) {
		p.Tangent = vec2.T{1, 0}
	}
	e, err := mirror.New(p, surface.NewPlanar(apt))
	require.NoError(t, err)
	return e
}

func normalIncidence(t *testing.T) *mirror.Element {
	return planarElement(t, mirror.Params{Normal: vec3.T{0, 0, 1}})
}

const tilt = 5 * math.Pi / 180

func tilted(t *testing.T) *mirror.Element {
	return planarElement(t, mirror.Params{Normal: vec3.T{0, math.Sin(tilt), math.Cos(tilt)}})
}

func testBeam(t *testing.T, centerZ, radius float64) *wavefront.Wavefront {
	t.Helper()
	w, err := wavefront.Gaussian(wavefront.GaussianParams{
		Energy:     wavefront.Mesh{Start: 1000, Step: 500, N: 2},
		X:          wavefront.Mesh{Start: -0.004, Step: 0.0002, N: 41},
		Z:          wavefront.Mesh{Start: -0.004, Step: 0.0002, N: 41},
		SigmaX:     0.0008,
		SigmaZ:     0.0006,
		CenterZ:    centerZ,
		RadiusX:    radius,
		RadiusZ:    radius,
		Horizontal: 1,
		Vertical:   0.5i,
	})
	require.NoError(t, err)
	return w
}

func cmplxDist(a, b complex128) float64 {
	return math.Hypot(real(a)-real(b), imag(a)-imag(b))
}

func TestNormalIncidencePlanarIsIdentity(t *testing.T) {
	elem := normalIncidence(t)
	in := testBeam(t, 0, 0)
	w := in.Clone()

	stats, err := Propagate(context.Background(), elem, w, Options{Workers: 3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	assert.Equal(t, 41*41, stats.Traced)
	assert.Zero(t, stats.Missed)
	assert.Zero(t, stats.OffAperture)

	for iz := 0; iz < w.Z.N; iz++ {
		for ix := 0; ix < w.X.N; ix++ {
			// The mesh edges sit on the boundary of the traced region and may
			// round outside it.
			if ix == 0 || ix == w.X.N-1 || iz == 0 || iz == w.Z.N-1 {
				continue
			}
			for ie := 0; ie < w.Energy.N; ie++ {
				i := w.Index(ie, ix, iz)
				if d := cmplxDist(w.EX[i], in.EX[i]); d > 1e-12 {
					t.Errorf("EX(%d, %d, %d) = %v, want %v", ie, ix, iz, w.EX[i], in.EX[i])
				}
				if d := cmplxDist(w.EZ[i], in.EZ[i]); d > 1e-12 {
					t.Errorf("EZ(%d, %d, %d) = %v, want %v", ie, ix, iz, w.EZ[i], in.EZ[i])
				}
			}
		}
	}
	assert.Equal(t, in.RadiusX, w.RadiusX)
	assert.Equal(t, in.RadiusZ, w.RadiusZ)
}

func TestNormalIncidenceTraceIsUndisplaced(t *testing.T) {
	elem := normalIncidence(t)
	setup, err := NewSetup(elem)
	require.NoError(t, err)

	for _, p := range []vec2.T{{0, 0}, {0.003, -0.002}, {-0.007, 0.009}} {
		tr, err := TraceRay(elem, setup, p[0], p[1], wavefront.CollimatedRadius, wavefront.CollimatedRadius, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 0.0, tr.OpticalPath())
		// The degenerate output basis mirrors x.
		if tr.Coord[0] != -p[0] {
			t.Errorf("Coord[0] at %v = %v, want %v", p, tr.Coord[0], -p[0])
		}
		assert.Equal(t, p[1], tr.Coord[1])
		assert.Equal(t, 1.0, AmplitudeFactor(Radii{
			XIn: wavefront.CollimatedRadius, ZIn: wavefront.CollimatedRadius,
			XOut: wavefront.CollimatedRadius, ZOut: wavefront.CollimatedRadius,
		}, tr.PathBefore, tr.PathAfter))
	}
}

func TestCoordinatesAreEnergyIndependent(t *testing.T) {
	elem := tilted(t)
	setup, err := NewSetup(elem)
	require.NoError(t, err)

	w := testBeam(t, 0.0005, 15)
	// Zero field at the second energy must not change where its samples go.
	for iz := 0; iz < w.Z.N; iz++ {
		for ix := 0; ix < w.X.N; ix++ {
			i := w.Index(1, ix, iz)
			w.EX[i], w.EZ[i] = 0, 0
		}
	}

	radii := Radii{XIn: w.RadiusX, ZIn: w.RadiusZ, XOut: w.RadiusX, ZOut: w.RadiusZ}
	s, stats, err := traceGrid(context.Background(), elem, setup, w, radii, w.CenterX, w.CenterZ, Options{Workers: 4}.withDefaults())
	require.NoError(t, err)
	assert.Equal(t, 41*41, stats.Traced)

	for iz := 0; iz < w.Z.N; iz++ {
		for ix := 0; ix < w.X.N; ix++ {
			c0 := s.Coords[w.Index(0, ix, iz)]
			c1 := s.Coords[w.Index(1, ix, iz)]
			if c0 != c1 {
				t.Errorf("sample (%d, %d): energy 0 went to %v, energy 1 to %v", ix, iz, c0, c1)
			}
			if !s.Bounds.Contains(c0) {
				t.Errorf("sample (%d, %d) at %v is outside bounds %v", ix, iz, c0, s.Bounds)
			}
		}
	}
}

func TestUnitTableMatchesNoTable(t *testing.T) {
	elem := tilted(t)
	energy, err := reflectivity.NewAxis(500, 3000, 6, reflectivity.Linear)
	require.NoError(t, err)
	angle, err := reflectivity.NewAxis(-math.Pi/2, math.Pi/2, 11, reflectivity.Linear)
	require.NoError(t, err)
	table := reflectivity.Constant(energy, angle, 1, 1)

	for _, mode := range []resample.Mode{resample.Bilinear, resample.BiQuadratic} {
		t.Run(mode.String(), func(t *testing.T) {
			bare := testBeam(t, 0.0005, 15)
			withTable := bare.Clone()

			_, err := Propagate(context.Background(), elem, bare, Options{Mode: mode})
			require.NoError(t, err)
			_, err = Propagate(context.Background(), elem, withTable, Options{Mode: mode, Table: table})
			require.NoError(t, err)

			if diff := cmp.Diff(withTable.EX, bare.EX); diff != "" {
				t.Errorf("EX; diff (-table +bare)\n%s", diff)
			}
			if diff := cmp.Diff(withTable.EZ, bare.EZ); diff != "" {
				t.Errorf("EZ; diff (-table +bare)\n%s", diff)
			}
		})
	}
}

func TestTableCoefficientsScaleChannels(t *testing.T) {
	elem := tilted(t)
	energy, err := reflectivity.NewAxis(500, 3000, 6, reflectivity.Linear)
	require.NoError(t, err)
	// One degree bins; the tilted mirror sits at -85 degrees, bin 5.
	angle, err := reflectivity.NewAxis(-math.Pi/2, math.Pi/2, 181, reflectivity.Linear)
	require.NoError(t, err)
	rs, rp := complex(0, 0.5), complex(-0.25, 0)
	table := reflectivity.Constant(energy, angle, 1, 1)
	for ie := 0; ie < energy.N; ie++ {
		table.Set(5, ie, rs, rp)
	}

	for _, mode := range []resample.Mode{resample.Bilinear, resample.BiQuadratic} {
		t.Run(mode.String(), func(t *testing.T) {
			// Collimated, so every ray shares one plane of incidence.
			plain := testBeam(t, 0.0005, 0)
			withTable := plain.Clone()

			_, err := Propagate(context.Background(), elem, plain, Options{Mode: mode})
			require.NoError(t, err)
			_, err = Propagate(context.Background(), elem, withTable, Options{Mode: mode, Table: table})
			require.NoError(t, err)

			// Sigma is horizontal and pi vertical for this mirror, so each
			// channel picks up exactly one coefficient.
			for i := range plain.EX {
				if d := cmplxDist(withTable.EX[i], rs*plain.EX[i]); d > 1e-12 {
					t.Fatalf("EX[%d] = %v, want %v", i, withTable.EX[i], rs*plain.EX[i])
				}
				if d := cmplxDist(withTable.EZ[i], rp*plain.EZ[i]); d > 1e-12 {
					t.Fatalf("EZ[%d] = %v, want %v", i, withTable.EZ[i], rp*plain.EZ[i])
				}
			}
		})
	}
}

func TestTiltedMirrorPathAndImage(t *testing.T) {
	elem := tilted(t)
	setup, err := NewSetup(elem)
	require.NoError(t, err)

	want := 2 * halfSize * math.Sin(tilt)
	for _, p := range []vec2.T{{0, 0}, {0, 0.009}, {0.009, -0.009}, {-0.005, 0.002}} {
		tr, err := TraceRay(elem, setup, p[0], p[1], wavefront.CollimatedRadius, wavefront.CollimatedRadius, 0, 0)
		require.NoError(t, err)
		assert.InDelta(t, want, tr.OpticalPath(), 0.01*want, "path at %v", p)
		assert.InDelta(t, want, tr.OpticalPath(), 1e-15, "path at %v", p)

		// Mirror image about the tangential (x) axis.
		assert.InDelta(t, p[0], tr.Coord[0], 1e-15)
		assert.InDelta(t, -p[1], tr.Coord[1], 1e-15)
	}

	w := testBeam(t, 0.001, 0)
	_, err = Propagate(context.Background(), elem, w, Options{})
	require.NoError(t, err)

	for ie := 0; ie < w.Energy.N; ie++ {
		intensity := w.Intensity(ie)
		var sum, sx, sz float64
		for iz := 0; iz < w.Z.N; iz++ {
			for ix := 0; ix < w.X.N; ix++ {
				v := intensity[iz*w.X.N+ix]
				sum += v
				sx += v * w.X.Value(ix)
				sz += v * w.Z.Value(iz)
			}
		}
		assert.InDelta(t, 0, sx/sum, 1e-9, "x centroid at energy %d", ie)
		assert.InDelta(t, -0.001, sz/sum, 1e-6, "z centroid at energy %d", ie)
	}
}

func TestApertureBoundaryIsClosed(t *testing.T) {
	elem := normalIncidence(t)
	setup, err := NewSetup(elem)
	require.NoError(t, err)
	r := wavefront.CollimatedRadius

	_, err = TraceRay(elem, setup, halfSize, 0, r, r, 0, 0)
	assert.NoError(t, err)
	_, err = TraceRay(elem, setup, 0, -halfSize, r, r, 0, 0)
	assert.NoError(t, err)

	_, err = TraceRay(elem, setup, halfSize*1.00001, 0, r, r, 0, 0)
	assert.True(t, errors.Is(err, opterr.ErrOutOfAperture), "got %v", err)
}

func TestBackwardRayIsNoIntersection(t *testing.T) {
	elem := normalIncidence(t)
	setup, err := NewSetup(elem)
	require.NoError(t, err)

	_, err = TraceRay(elem, setup, 0.004, 0, 0.001, 0.001, 0, 0)
	assert.True(t, errors.Is(err, opterr.ErrNoIntersection), "got %v", err)
}

func TestOffApertureSamplesAreZero(t *testing.T) {
	apt, err := surface.NewAperture(0.002, 0.002, surface.Elliptical)
	require.NoError(t, err)
	elem, err := mirror.New(mirror.Params{
		Normal:  vec3.T{0, 0, 1},
		Tangent: vec2.T{1, 0},
		Method:  mirror.MethodRayTrace,
	}, surface.NewPlanar(apt))
	require.NoError(t, err)

	w := testBeam(t, 0, 0)
	stats, err := Propagate(context.Background(), elem, w, Options{})
	require.NoError(t, err)
	assert.NotZero(t, stats.OffAperture)
	assert.Equal(t, 41*41, stats.Traced+stats.OffAperture)

	// Corners of the mesh are outside the traced bounds.
	i := w.Index(0, 0, 0)
	assert.Equal(t, complex128(0), w.EX[i])
	assert.Equal(t, complex128(0), w.EZ[i])
}

func TestScratchBudgetFailsCleanly(t *testing.T) {
	elem := tilted(t)
	w := testBeam(t, 0, 0)
	orig := w.Clone()

	_, err := Propagate(context.Background(), elem, w, Options{MaxScratchBytes: 1000})
	assert.True(t, errors.Is(err, opterr.ErrAllocationFailure), "got %v", err)
	if diff := cmp.Diff(orig, w); diff != "" {
		t.Errorf("wavefront changed; diff (-want +got)\n%s", diff)
	}
}

func TestFourierByPartsIsRejected(t *testing.T) {
	elem := planarElement(t, mirror.Params{
		Normal: vec3.T{0, 0, 1},
		Method: mirror.MethodFourierByParts,
	})
	w := testBeam(t, 0, 0)

	_, err := Propagate(context.Background(), elem, w, Options{})
	assert.True(t, errors.Is(err, opterr.ErrInvalidParameter), "got %v", err)
}

func TestTreatmentRadiusBookkeeping(t *testing.T) {
	tests := []struct {
		treat mirror.TreatInOut
		want  float64
	}{
		{mirror.TreatFromPlanes, 10.3},
		{mirror.TreatAtCenter, 10},
		{mirror.TreatWithDrifts, 10},
	}

	for _, tc := range tests {
		elem := planarElement(t, mirror.Params{
			Normal:     vec3.T{0, 0, 1},
			TreatInOut: tc.treat,
			ExtIn:      0.1,
			ExtOut:     0.2,
		})
		w := testBeam(t, 0, 10)

		_, err := Propagate(context.Background(), elem, w, Options{})
		require.NoError(t, err)
		assert.InDelta(t, tc.want, w.RadiusX, 1e-12, "treatment %d", tc.treat)
		assert.InDelta(t, tc.want, w.RadiusZ, 1e-12, "treatment %d", tc.treat)
	}
}

func TestAmplitudeFactor(t *testing.T) {
	assert.InDelta(t, 0.5, AmplitudeFactor(Radii{XIn: 10, ZIn: 10, XOut: 10, ZOut: 10}, 10, 0), 1e-15)
	assert.InDelta(t, 1, AmplitudeFactor(Radii{XIn: 10, ZIn: 10, XOut: -10, ZOut: -10}, 1, 1), 1e-15)
	assert.Equal(t, 1.0, AmplitudeFactor(Radii{XIn: -1, ZIn: 10, XOut: 10, ZOut: 10}, 1, 0))
}

func TestScratchBytesOverflow(t *testing.T) {
	w := &wavefront.Wavefront{
		Energy: wavefront.Mesh{N: 1 << 30},
		X:      wavefront.Mesh{N: 1 << 30},
		Z:      wavefront.Mesh{N: 1 << 30},
	}
	_, ok := scratchBytes(w)
	assert.False(t, ok)

	w = &wavefront.Wavefront{
		Energy: wavefront.Mesh{N: 2},
		X:      wavefront.Mesh{N: 3},
		Z:      wavefront.Mesh{N: 5},
	}
	n, ok := scratchBytes(w)
	assert.True(t, ok)
	assert.Equal(t, uint64(30*scratchPerSample), n)
}

// Point-to-point ellipsoid used by the focusing tests: the source sits p
// upstream of the pole, the image q downstream, and the sagittal radius makes
// the surface one of revolution.
const (
	ellP     = 10.0
	ellQ     = 5.0
	ellTheta = 0.01
	ellExtIn = 0.5
)

func ellipsoidElement(t *testing.T, extOut float64) *mirror.Element {
	t.Helper()
	apt, err := surface.NewAperture(0.3, 0.01, surface.Rectangular)
	require.NoError(t, err)
	radSag := 2 * ellP * ellQ * math.Sin(ellTheta) / (ellP + ellQ)
	s, err := surface.NewEllipsoid(ellP, ellQ, ellTheta, radSag, apt)
	require.NoError(t, err)

	e, err := mirror.New(mirror.Params{
		Normal:     vec3.T{0, math.Cos(ellTheta), -math.Sin(ellTheta)},
		Tangent:    vec2.T{0, 1},
		Method:     mirror.MethodRayTrace,
		TreatInOut: mirror.TreatFromPlanes,
		ExtIn:      ellExtIn,
		ExtOut:     extOut,
	}, s)
	require.NoError(t, err)
	return e
}

func TestEllipsoidFocusesPointSource(t *testing.T) {
	elem := ellipsoidElement(t, ellQ)
	setup, err := NewSetup(elem)
	require.NoError(t, err)

	r := ellP - ellExtIn
	for _, p := range []vec2.T{{0, 0}, {0.001, 0}, {0, 0.001}, {-0.001, -0.001}, {0.0005, -0.0008}} {
		tr, err := TraceRay(elem, setup, p[0], p[1], r, r, 0, 0)
		require.NoError(t, err, "ray at %v", p)

		// The output plane passes through the image focus.
		if n := tr.Coord.Norm(); n > 1e-9 {
			t.Errorf("ray at %v lands %v from the focus (%v)", p, n, tr.Coord)
		}

		// Source to image paths are all equal.
		fromSource := math.Sqrt(r*r + p[0]*p[0] + p[1]*p[1])
		assert.InDelta(t, ellP+ellQ, fromSource+tr.OpticalPath(), 1e-12, "path at %v", p)
	}
}

func moments(w *wavefront.Wavefront, ie int) (power, cx, cz, sx, sz float64) {
	intensity := w.Intensity(ie)
	for iz := 0; iz < w.Z.N; iz++ {
		for ix := 0; ix < w.X.N; ix++ {
			v := intensity[iz*w.X.N+ix]
			x, z := w.X.Value(ix), w.Z.Value(iz)
			power += v
			cx += v * x
			cz += v * z
			sx += v * x * x
			sz += v * z * z
		}
	}
	cx /= power
	cz /= power
	sx = math.Sqrt(sx/power - cx*cx)
	sz = math.Sqrt(sz/power - cz*cz)
	return power * w.X.Step * w.Z.Step, cx, cz, sx, sz
}

func TestEllipsoidConvergesBeam(t *testing.T) {
	const extOut = 2.5
	elem := ellipsoidElement(t, extOut)

	// A low photon energy keeps the curvature phase well sampled.
	r := ellP - ellExtIn
	in, err := wavefront.Gaussian(wavefront.GaussianParams{
		Energy:     wavefront.Mesh{Start: 1, Step: 1, N: 2},
		X:          wavefront.Mesh{Start: -0.001, Step: 0.00005, N: 41},
		Z:          wavefront.Mesh{Start: -0.001, Step: 0.00005, N: 41},
		SigmaX:     0.00025,
		SigmaZ:     0.00025,
		RadiusX:    r,
		RadiusZ:    r,
		Horizontal: 1,
	})
	require.NoError(t, err)
	w := in.Clone()

	stats, err := Propagate(context.Background(), elem, w, Options{Mode: resample.BiQuadratic})
	require.NoError(t, err)
	assert.Equal(t, 41*41, stats.Traced)
	assert.Zero(t, stats.Missed)
	assert.Zero(t, stats.OffAperture)

	// Converging toward the image, ellQ-extOut beyond the output plane.
	assert.InDelta(t, extOut-ellQ, w.RadiusX, 1e-9)
	assert.InDelta(t, extOut-ellQ, w.RadiusZ, 1e-9)

	// Demagnified by the ellipse, then halfway to the focus.
	m := ellP / r * (ellQ - extOut) / ellQ
	for ie := 0; ie < w.Energy.N; ie++ {
		pIn, _, _, sxIn, szIn := moments(in, ie)
		pOut, cx, cz, sxOut, szOut := moments(w, ie)

		assert.InDelta(t, 1, pOut/pIn, 0.05, "power ratio at energy %d", ie)
		assert.InDelta(t, m, sxOut/sxIn, 0.05*m, "x size ratio at energy %d", ie)
		assert.InDelta(t, m, szOut/szIn, 0.05*m, "z size ratio at energy %d", ie)
		assert.InDelta(t, 0, cx, 0.1*sxOut, "x centroid at energy %d", ie)
		assert.InDelta(t, 0, cz, 0.1*szOut, "z centroid at energy %d", ie)
	}

	// The compression shows up in the amplitude.
	setup, err := NewSetup(elem)
	require.NoError(t, err)
	tr, err := TraceRay(elem, setup, 0, 0, r, r, 0, 0)
	require.NoError(t, err)
	amp := AmplitudeFactor(Radii{XIn: r, ZIn: r, XOut: w.RadiusX, ZOut: w.RadiusZ}, tr.PathBefore, tr.PathAfter)
	assert.InDelta(t, 1/m, amp, 1e-6)
}
