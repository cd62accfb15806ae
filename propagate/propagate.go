// Package propagate carries a wavefront through a thick mirror by local ray
// tracing.
//
// Every mesh sample is treated as a ray normal to the wavefront.  The ray is
// reflected by the surface and stopped on the output plane, which gives the
// sample a phase from its optical path and a new transverse position.  The
// scattered field is then resampled onto the input mesh.
package propagate

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"runtime"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"row-major/thickmirror/aabox"
	"row-major/thickmirror/drift"
	"row-major/thickmirror/mirror"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/reflectivity"
	"row-major/thickmirror/resample"
	"row-major/thickmirror/vmath/vec2"
	"row-major/thickmirror/vmath/vec3"
	"row-major/thickmirror/wavefront"
)

// DefaultMaxScratchBytes bounds the transient buffers of one call when
// Options.MaxScratchBytes is zero.
const DefaultMaxScratchBytes = 4 << 30

// Bytes of scratch per mesh sample: the scattered field, its coordinates,
// and the worker's copy of the input rows.
const scratchPerSample = 2*16 + 16 + 2*16

type Options struct {
	// Workers bounds concurrent row chunks.  Zero means one per CPU.
	Workers int

	// Interpolation used to bring the scattered field back onto the mesh.
	// Zero means bilinear.
	Mode resample.Mode

	MaxScratchBytes uint64

	// Drift collaborator for the extents.  Nil means curvature bookkeeping
	// only.
	Drift drift.Drift

	// Optional complex reflectivity.  Nil means unit reflectivity.
	Table *reflectivity.Table
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Mode == 0 {
		o.Mode = resample.Bilinear
	}
	if o.MaxScratchBytes == 0 {
		o.MaxScratchBytes = DefaultMaxScratchBytes
	}
	if o.Drift == nil {
		o.Drift = drift.Curvature{}
	}
	return o
}

// Stats summarizes the fate of the traced rays of one call.
type Stats struct {
	Traced      int
	Missed      int
	OffAperture int
	Bounds      aabox.AABox
}

func (s *Stats) merge(o Stats) {
	s.Traced += o.Traced
	s.Missed += o.Missed
	s.OffAperture += o.OffAperture
	s.Bounds = aabox.Union(s.Bounds, o.Bounds)
}

// scratchBytes is the scratch size of one call over w, or false on overflow.
func scratchBytes(w *wavefront.Wavefront) (uint64, bool) {
	hi, n := bits.Mul64(uint64(w.Energy.N), uint64(w.X.N))
	if hi != 0 {
		return 0, false
	}
	hi, n = bits.Mul64(n, uint64(w.Z.N))
	if hi != 0 {
		return 0, false
	}
	hi, n = bits.Mul64(n, scratchPerSample)
	if hi != 0 {
		return 0, false
	}
	return n, true
}

// Propagate replaces the field of w by its image through elem.  Rays lost
// to the surface or the aperture leave zero field.  Errors before tracing
// starts leave w untouched.
func Propagate(ctx context.Context, elem *mirror.Element, w *wavefront.Wavefront, opts Options) (stats Stats, err error) {
	tracer := otel.Tracer("row-major/thickmirror/propagate")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "Propagate")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	opts = opts.withDefaults()
	p := elem.Params()

	if p.Method != mirror.MethodRayTrace {
		return Stats{}, opterr.Newf(opterr.InvalidParameter, "propagation method %v is not supported", p.Method)
	}
	if opts.Mode != resample.Bilinear && opts.Mode != resample.BiQuadratic {
		return Stats{}, opterr.Newf(opterr.InvalidParameter, "unknown interpolation mode %d", opts.Mode)
	}
	if w.Energy.N < 1 || w.X.N < 2 || w.Z.N < 2 {
		return Stats{}, opterr.Newf(opterr.InvalidParameter, "wavefront mesh %d x %d x %d is too small to propagate", w.Energy.N, w.X.N, w.Z.N)
	}
	if need, ok := scratchBytes(w); !ok || need > opts.MaxScratchBytes {
		return Stats{}, opterr.Newf(opterr.AllocationFailure, "propagation scratch for %d x %d x %d samples exceeds %d bytes", w.Energy.N, w.X.N, w.Z.N, opts.MaxScratchBytes)
	}

	setup, err := NewSetup(elem)
	if err != nil {
		return Stats{}, err
	}

	extIn, extOut := elem.Extents()
	fromPlanes := p.TreatInOut == mirror.TreatFromPlanes || p.TreatInOut == mirror.TreatWithDrifts

	if p.TreatInOut == mirror.TreatWithDrifts && extIn != 0 {
		if err := opts.Drift.Propagate(ctx, w, -extIn); err != nil {
			return Stats{}, fmt.Errorf("while drifting back to the element entrance: %w", err)
		}
	}

	radii := Radii{XIn: w.RadiusX, ZIn: w.RadiusZ}
	xc, zc := w.CenterX, w.CenterZ

	if fromPlanes && extIn != 0 {
		opts.Drift.PropagateRadius(w, extIn)
	}
	elem.UpdateRadii(w)
	if fromPlanes && extOut != 0 {
		opts.Drift.PropagateRadius(w, extOut)
	}
	radii.XOut, radii.ZOut = w.RadiusX, w.RadiusZ

	scattered, stats, err := traceGrid(ctx, elem, setup, w, radii, xc, zc, opts)
	if err != nil {
		return stats, err
	}

	if glog.V(1) {
		glog.Infof("Traced %d rays: %d missed the surface, %d fell outside the aperture; output bounds x=[%v, %v] z=[%v, %v]",
			stats.Traced, stats.Missed, stats.OffAperture,
			stats.Bounds.X.Lo, stats.Bounds.X.Hi, stats.Bounds.Z.Lo, stats.Bounds.Z.Hi)
	}

	if err := resample.OntoGrid(ctx, w, scattered, resample.Options{Mode: opts.Mode, Workers: opts.Workers}); err != nil {
		return stats, fmt.Errorf("while resampling the reflected field: %w", err)
	}

	if p.TreatInOut == mirror.TreatWithDrifts && extOut != 0 {
		if err := opts.Drift.Propagate(ctx, w, -extOut); err != nil {
			return stats, fmt.Errorf("while drifting back to the element center: %w", err)
		}
	}
	return stats, nil
}

// chunkWorker traces a band of z rows.  It owns a copy of its rows so the
// input field can be overwritten in place.
type chunkWorker struct {
	elem  *mirror.Element
	setup *Setup
	radii Radii
	table *reflectivity.Table

	xc, zc float64

	rowSrc, rowLim int
	chunk          *wavefront.Wavefront

	// Shared coordinate buffer; each worker writes only its own rows.
	coords []vec2.T

	stats Stats
}

func traceGrid(ctx context.Context, elem *mirror.Element, setup *Setup, w *wavefront.Wavefront, radii Radii, xc, zc float64, opts Options) (*resample.Scattered, Stats, error) {
	tracer := otel.Tracer("row-major/thickmirror/propagate")
	ctx, span := tracer.Start(ctx, "Trace grid")
	defer span.End()

	scattered := &resample.Scattered{
		EX:     make([]complex128, w.Len()),
		EZ:     make([]complex128, w.Len()),
		Coords: make([]vec2.T, w.Len()),
	}
	out := &wavefront.Wavefront{Energy: w.Energy, X: w.X, Z: w.Z, EX: scattered.EX, EZ: scattered.EZ}

	workers := opts.Workers
	if workers > w.Z.N {
		workers = w.Z.N
	}
	workUnit := (w.Z.N + workers - 1) / workers

	chunkWorkers := []*chunkWorker{}
	for rowSrc := 0; rowSrc < w.Z.N; rowSrc += workUnit {
		rowLim := rowSrc + workUnit
		if rowLim > w.Z.N {
			rowLim = w.Z.N
		}
		chunkWorkers = append(chunkWorkers, &chunkWorker{
			elem:   elem,
			setup:  setup,
			radii:  radii,
			table:  opts.Table,
			xc:     xc,
			zc:     zc,
			rowSrc: rowSrc,
			rowLim: rowLim,
			chunk:  w.Cut(rowSrc, rowLim),
			coords: scattered.Coords,
			stats:  Stats{Bounds: aabox.AccumZero()},
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, worker := range chunkWorkers {
		worker := worker
		g.Go(func() error {
			if err := worker.trace(ctx); err != nil {
				return err
			}
			out.Paste(worker.chunk, worker.rowSrc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, Stats{}, fmt.Errorf("while tracing rays: %w", err)
	}

	stats := Stats{Bounds: aabox.AccumZero()}
	for _, worker := range chunkWorkers {
		stats.merge(worker.stats)
	}
	scattered.Bounds = stats.Bounds
	return scattered, stats, nil
}

func (c *chunkWorker) trace(ctx context.Context) error {
	w := c.chunk
	f := c.elem.Frame()

	for iz := 0; iz < w.Z.N; iz++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		z := w.Z.Value(iz)

		for ix := 0; ix < w.X.N; ix++ {
			x := w.X.Value(ix)
			row := (c.rowSrc+iz)*w.X.N + ix

			t, err := TraceRay(c.elem, c.setup, x, z, c.radii.XIn, c.radii.ZIn, c.xc, c.zc)
			if err != nil {
				if opterr.CodeOf(err) == opterr.OutOfAperture {
					c.stats.OffAperture++
				} else {
					c.stats.Missed++
				}
				for ie := 0; ie < w.Energy.N; ie++ {
					i := w.Index(ie, ix, iz)
					w.EX[i], w.EZ[i] = 0, 0
					c.coords[row*w.Energy.N+ie] = vec2.T{resample.OffGrid, resample.OffGrid}
				}
				continue
			}

			c.stats.Traced++
			c.stats.Bounds = aabox.GrowToPoint(c.stats.Bounds, t.Coord)

			amp := AmplitudeFactor(c.radii, t.PathBefore, t.PathAfter)
			path := t.OpticalPath()

			var sigma, pi vec3.T
			var graz float64
			if c.table != nil {
				sigma, pi, graz = reflectivity.Basis(t.In, t.Hit.N, f.VectorToBeam)
			}

			for ie := 0; ie < w.Energy.N; ie++ {
				i := w.Index(ie, ix, iz)
				c.coords[row*w.Energy.N+ie] = t.Coord

				ex, ez := w.EX[i], w.EZ[i]
				if ex == 0 && ez == 0 {
					continue
				}

				energy := w.Energy.Value(ie)
				s, co := math.Sincos(wavefront.Wavenumber(energy) * path)
				rot := complex(co, s)

				// No table is unit reflectivity.
				rs, rp := complex128(1), complex128(1)
				if c.table != nil {
					rs, rp = c.table.Lookup(energy, graz)
				}
				w.EX[i], w.EZ[i] = reflectivity.Reflect(ex, ez, sigma, pi, rs, rp, rot, amp)
			}
		}
	}
	return nil
}
