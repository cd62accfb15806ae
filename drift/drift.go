// Package drift moves a wavefront through free space along the beam axis.
package drift

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"runtime"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"

	"row-major/thickmirror/wavefront"
)

type Drift interface {
	// PropagateRadius advances only the curvature bookkeeping by length.
	PropagateRadius(w *wavefront.Wavefront, length float64)

	// Propagate drifts the wavefront by length, field included.
	Propagate(ctx context.Context, w *wavefront.Wavefront, length float64) error
}

func advanceRadius(r, length float64) float64 {
	if wavefront.IsCollimated(r) {
		return r
	}
	return r + length
}

func propagateRadius(w *wavefront.Wavefront, length float64) {
	w.RadiusX = advanceRadius(w.RadiusX, length)
	w.RadiusZ = advanceRadius(w.RadiusZ, length)
}

// Curvature tracks radii and leaves the field alone.
type Curvature struct{}

func (Curvature) PropagateRadius(w *wavefront.Wavefront, length float64) {
	propagateRadius(w, length)
}

func (Curvature) Propagate(ctx context.Context, w *wavefront.Wavefront, length float64) error {
	propagateRadius(w, length)
	return nil
}

// AngularSpectrum drifts the field exactly by filtering its plane-wave
// spectrum.  The transverse mesh is treated as periodic, so the field should
// vanish near the edges.
type AngularSpectrum struct {
	// Workers bounds the energy slices processed concurrently.  Zero means
	// one per CPU.
	Workers int
}

func (a AngularSpectrum) PropagateRadius(w *wavefront.Wavefront, length float64) {
	propagateRadius(w, length)
}

func (a AngularSpectrum) Propagate(ctx context.Context, w *wavefront.Wavefront, length float64) error {
	if length != 0 {
		workers := a.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		if workers > w.Energy.N {
			workers = w.Energy.N
		}

		g, ctx := errgroup.WithContext(ctx)
		for worker := 0; worker < workers; worker++ {
			worker := worker
			g.Go(func() error {
				p := newPlan(w.X.N, w.Z.N)
				for ie := worker; ie < w.Energy.N; ie += workers {
					if err := ctx.Err(); err != nil {
						return err
					}
					p.driftSlice(w, ie, length)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("while drifting field by %v: %w", length, err)
		}
		glog.V(1).Infof("Drifted %d energy slices by %v", w.Energy.N, length)
	}

	propagateRadius(w, length)
	return nil
}

// plan holds one worker's FFTs and scratch.
type plan struct {
	rowFFT, colFFT *fourier.CmplxFFT
	plane          []complex128
	row, col       []complex128
}

func newPlan(nx, nz int) *plan {
	return &plan{
		rowFFT: fourier.NewCmplxFFT(nx),
		colFFT: fourier.NewCmplxFFT(nz),
		plane:  make([]complex128, nx*nz),
		row:    make([]complex128, nx),
		col:    make([]complex128, nz),
	}
}

// freq is the angular spatial frequency of FFT bin j of n samples spaced d.
func freq(j, n int, d float64) float64 {
	if n < 2 {
		return 0
	}
	if j >= (n+1)/2 {
		j -= n
	}
	return 2 * math.Pi * float64(j) / (float64(n) * d)
}

func (p *plan) driftSlice(w *wavefront.Wavefront, ie int, length float64) {
	k := wavefront.Wavenumber(w.Energy.Value(ie))
	nx, nz := w.X.N, w.Z.N

	for _, field := range [][]complex128{w.EX, w.EZ} {
		for iz := 0; iz < nz; iz++ {
			for ix := 0; ix < nx; ix++ {
				p.plane[iz*nx+ix] = field[w.Index(ie, ix, iz)]
			}
		}

		p.fft2(true)

		for iz := 0; iz < nz; iz++ {
			kz := freq(iz, nz, w.Z.Step)
			for ix := 0; ix < nx; ix++ {
				kx := freq(ix, nx, w.X.Step)
				kl2 := k*k - kx*kx - kz*kz
				if kl2 < 0 {
					p.plane[iz*nx+ix] = 0
					continue
				}
				p.plane[iz*nx+ix] *= cmplx.Exp(complex(0, length*math.Sqrt(kl2)))
			}
		}

		p.fft2(false)

		scale := complex(1/float64(nx*nz), 0)
		for iz := 0; iz < nz; iz++ {
			for ix := 0; ix < nx; ix++ {
				field[w.Index(ie, ix, iz)] = p.plane[iz*nx+ix] * scale
			}
		}
	}
}

func (p *plan) fft2(forward bool) {
	nx, nz := len(p.row), len(p.col)

	for iz := 0; iz < nz; iz++ {
		r := p.plane[iz*nx : (iz+1)*nx]
		copy(p.row, r)
		if forward {
			p.rowFFT.Coefficients(p.row, p.row)
		} else {
			p.rowFFT.Sequence(p.row, p.row)
		}
		copy(r, p.row)
	}

	for ix := 0; ix < nx; ix++ {
		for iz := 0; iz < nz; iz++ {
			p.col[iz] = p.plane[iz*nx+ix]
		}
		if forward {
			p.colFFT.Coefficients(p.col, p.col)
		} else {
			p.colFFT.Sequence(p.col, p.col)
		}
		for iz := 0; iz < nz; iz++ {
			p.plane[iz*nx+ix] = p.col[iz]
		}
	}
}
