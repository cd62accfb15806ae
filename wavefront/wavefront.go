// Package wavefront holds a coherent field sampled on a regular
// (photon energy, x, z) mesh, with the curvature bookkeeping that lets a
// propagator recover local ray directions.
package wavefront

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"

	"row-major/thickmirror/opterr"
)

// WavenumberPerEV converts photon energy in eV to wavenumber in 1/m.
const WavenumberPerEV = 5.067730652e6

// CollimatedRadius marks a curvature radius as infinite.
const CollimatedRadius = 1e23

func Wavenumber(energyEV float64) float64 {
	return WavenumberPerEV * energyEV
}

// IsCollimated reports whether r is at or beyond the collimated sentinel.
func IsCollimated(r float64) bool {
	return math.Abs(r) >= CollimatedRadius
}

// Mesh is a regular 1D sampling.
type Mesh struct {
	Start float64
	Step  float64
	N     int
}

func (m Mesh) Value(i int) float64 {
	return m.Start + float64(i)*m.Step
}

// End is the coordinate of the last sample.
func (m Mesh) End() float64 {
	return m.Value(m.N - 1)
}

// Wavefront stores the horizontal and vertical field channels.  Sample
// (ie, ix, iz) lives at index (iz*X.N + ix)*Energy.N + ie, so one z row of
// all energies is contiguous.
type Wavefront struct {
	Energy, X, Z Mesh

	RadiusX, RadiusZ float64
	CenterX, CenterZ float64

	EX, EZ []complex128
}

// New allocates a zero field on the given meshes.
func New(energy, x, z Mesh) *Wavefront {
	w := &Wavefront{
		Energy:  energy,
		X:       x,
		Z:       z,
		RadiusX: CollimatedRadius,
		RadiusZ: CollimatedRadius,
	}
	w.EX = make([]complex128, w.Len())
	w.EZ = make([]complex128, w.Len())
	return w
}

func (w *Wavefront) Len() int {
	return w.Energy.N * w.X.N * w.Z.N
}

func (w *Wavefront) Index(ie, ix, iz int) int {
	return (iz*w.X.N+ix)*w.Energy.N + ie
}

// RowLen is the number of samples in one z row.
func (w *Wavefront) RowLen() int {
	return w.X.N * w.Energy.N
}

// Cut copies z rows [zSrc, zLim) into a new wavefront with the same energy
// and x meshes.
func (w *Wavefront) Cut(zSrc, zLim int) *Wavefront {
	z := w.Z
	z.Start = w.Z.Value(zSrc)
	z.N = zLim - zSrc

	dst := New(w.Energy, w.X, z)
	dst.RadiusX, dst.RadiusZ = w.RadiusX, w.RadiusZ
	dst.CenterX, dst.CenterZ = w.CenterX, w.CenterZ

	lo, hi := zSrc*w.RowLen(), zLim*w.RowLen()
	copy(dst.EX, w.EX[lo:hi])
	copy(dst.EZ, w.EZ[lo:hi])
	return dst
}

// Paste writes all rows of src into w starting at row zSrc.
func (w *Wavefront) Paste(src *Wavefront, zSrc int) {
	lo := zSrc * w.RowLen()
	copy(w.EX[lo:lo+src.Len()], src.EX)
	copy(w.EZ[lo:lo+src.Len()], src.EZ)
}

func (w *Wavefront) Clone() *Wavefront {
	dst := *w
	dst.EX = append([]complex128(nil), w.EX...)
	dst.EZ = append([]complex128(nil), w.EZ...)
	return &dst
}

// Intensity returns |EX|^2 + |EZ|^2 at energy index ie, laid out as
// [iz*X.N + ix].
func (w *Wavefront) Intensity(ie int) []float64 {
	out := make([]float64, w.X.N*w.Z.N)
	for iz := 0; iz < w.Z.N; iz++ {
		for ix := 0; ix < w.X.N; ix++ {
			i := w.Index(ie, ix, iz)
			ex, ez := w.EX[i], w.EZ[i]
			out[iz*w.X.N+ix] = real(ex)*real(ex) + imag(ex)*imag(ex) + real(ez)*real(ez) + imag(ez)*imag(ez)
		}
	}
	return out
}

// Power integrates the intensity at energy index ie over the transverse
// mesh.
func (w *Wavefront) Power(ie int) float64 {
	return floats.Sum(w.Intensity(ie)) * math.Abs(w.X.Step*w.Z.Step)
}

// GaussianParams describe a Gaussian beam waist sampled on a mesh.  Sigma is
// the RMS size of the intensity.  Polarization weights the two channels.
type GaussianParams struct {
	Energy, X, Z     Mesh
	SigmaX, SigmaZ   float64
	CenterX, CenterZ float64

	// Curvature radii of the phase front.  Zero means collimated.
	RadiusX, RadiusZ float64

	Horizontal, Vertical complex128
}

func Gaussian(p GaussianParams) (*Wavefront, error) {
	if p.Energy.N < 1 || p.X.N < 1 || p.Z.N < 1 {
		return nil, opterr.Newf(opterr.InvalidParameter, "mesh sizes must be positive, got %d x %d x %d", p.Energy.N, p.X.N, p.Z.N)
	}
	if !(p.SigmaX > 0) || !(p.SigmaZ > 0) {
		return nil, opterr.Newf(opterr.InvalidParameter, "beam sizes must be positive, got %v x %v", p.SigmaX, p.SigmaZ)
	}

	w := New(p.Energy, p.X, p.Z)
	w.CenterX, w.CenterZ = p.CenterX, p.CenterZ
	if p.RadiusX != 0 {
		w.RadiusX = p.RadiusX
	}
	if p.RadiusZ != 0 {
		w.RadiusZ = p.RadiusZ
	}

	for iz := 0; iz < p.Z.N; iz++ {
		dz := p.Z.Value(iz) - p.CenterZ
		for ix := 0; ix < p.X.N; ix++ {
			dx := p.X.Value(ix) - p.CenterX
			amp := math.Exp(-dx*dx/(4*p.SigmaX*p.SigmaX) - dz*dz/(4*p.SigmaZ*p.SigmaZ))

			for ie := 0; ie < p.Energy.N; ie++ {
				k := Wavenumber(p.Energy.Value(ie))
				phase := 0.0
				if !IsCollimated(w.RadiusX) {
					phase += k * dx * dx / (2 * w.RadiusX)
				}
				if !IsCollimated(w.RadiusZ) {
					phase += k * dz * dz / (2 * w.RadiusZ)
				}
				f := complex(amp, 0) * cmplx.Exp(complex(0, phase))

				i := w.Index(ie, ix, iz)
				w.EX[i] = f * p.Horizontal
				w.EZ[i] = f * p.Vertical
			}
		}
	}
	return w, nil
}
