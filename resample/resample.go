// Package resample interpolates a field known at scattered, ray-traced
// coordinates back onto the regular mesh of a wavefront.
//
// The scattered samples keep the wavefront's (energy, x, z) index layout;
// only their physical coordinates move.  That structure lets the
// interpolation stencils be built from index neighbours even though the
// coordinates are irregular.
package resample

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"row-major/thickmirror/aabox"
	"row-major/thickmirror/kdtree"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/vmath/vec2"
	"row-major/thickmirror/wavefront"
)

type Mode int

const (
	// Four-point bilinear interpolation.
	Bilinear Mode = 1

	// Five-point interpolation, quadratic along each axis.
	BiQuadratic Mode = 2
)

func (m Mode) String() string {
	switch m {
	case Bilinear:
		return "bilinear"
	case BiQuadratic:
		return "bi-quadratic"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// OffGrid is the coordinate recorded for samples whose ray was lost.
const OffGrid = -1e23

// Scattered is a ray-traced field.  All slices share the wavefront's index
// layout.
type Scattered struct {
	EX, EZ []complex128
	Coords []vec2.T

	// Bounds of the coordinates of traced samples.
	Bounds aabox.AABox
}

type Options struct {
	Mode Mode

	// Workers bounds concurrent rows.  Zero means one per CPU.
	Workers int
}

type task struct {
	ie, iz int
}

// OntoGrid overwrites the field of w with s interpolated at w's mesh
// points.  Mesh points outside s.Bounds, or whose neighbourhood has no
// usable traced samples, are set to zero.
func OntoGrid(ctx context.Context, w *wavefront.Wavefront, s *Scattered, opts Options) (err error) {
	tracer := otel.Tracer("row-major/thickmirror/resample")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "Resample OntoGrid")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if opts.Mode != Bilinear && opts.Mode != BiQuadratic {
		return opterr.Newf(opterr.InvalidParameter, "unknown interpolation mode %d", opts.Mode)
	}
	if w.X.N < 2 || w.Z.N < 2 {
		return opterr.Newf(opterr.InvalidParameter, "resampling needs at least 2 points per transverse axis, got %d x %d", w.X.N, w.Z.N)
	}
	if len(s.EX) != w.Len() || len(s.EZ) != w.Len() || len(s.Coords) != w.Len() {
		return opterr.Newf(opterr.InvalidParameter, "scattered field has %d samples, wavefront has %d", len(s.Coords), w.Len())
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	layers := make([]*layer, w.Energy.N)
	seeds := make([]*kdtree.KDTree, w.Energy.N)
	for ie := range layers {
		ie := ie
		layers[ie] = &layer{
			nx:    w.X.N,
			nz:    w.Z.N,
			coord: func(ix, iz int) vec2.T { return s.Coords[w.Index(ie, ix, iz)] },
			index: func(ix, iz int) int { return w.Index(ie, ix, iz) },
		}
	}

	if !s.Bounds.IsEmpty() {
		if err := buildSeeds(ctx, w, s, seeds, workers); err != nil {
			return err
		}
	}

	tasks := make(chan task)
	var singular int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(tasks)
		for ie := 0; ie < w.Energy.N; ie++ {
			for iz := 0; iz < w.Z.N; iz++ {
				select {
				case tasks <- task{ie, iz}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for t := range tasks {
				n := resampleRow(w, s, opts.Mode, layers[t.ie], seeds[t.ie], t)
				atomic.AddInt64(&singular, int64(n))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("while resampling: %w", err)
	}

	if singular > 0 {
		glog.Warningf("%d irregular stencils were singular; used the anchor sample instead", singular)
	}
	if glog.V(1) {
		glog.Infof("Resampled %d x %d x %d points (%v)", w.Energy.N, w.X.N, w.Z.N, opts.Mode)
	}
	return nil
}

func buildSeeds(ctx context.Context, w *wavefront.Wavefront, s *Scattered, seeds []*kdtree.KDTree, workers int) error {
	if workers > w.Energy.N {
		workers = w.Energy.N
	}

	g, ctx := errgroup.WithContext(ctx)
	for worker := 0; worker < workers; worker++ {
		worker := worker
		g.Go(func() error {
			for ie := worker; ie < w.Energy.N; ie += workers {
				if err := ctx.Err(); err != nil {
					return err
				}

				elements := make([]kdtree.KDElement, 0, w.X.N*w.Z.N)
				for iz := 0; iz < w.Z.N; iz++ {
					for ix := 0; ix < w.X.N; ix++ {
						c := s.Coords[w.Index(ie, ix, iz)]
						if !s.Bounds.Contains(c) {
							continue
						}
						elements = append(elements, kdtree.KDElement{Ref: iz*w.X.N + ix, Point: c})
					}
				}
				seeds[ie] = kdtree.NewKDTree(elements, 8)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("while building seed trees: %w", err)
	}
	return nil
}

// resampleRow fills mesh row t.iz at energy t.ie and returns the number of
// singular stencils met.
func resampleRow(w *wavefront.Wavefront, s *Scattered, mode Mode, l *layer, seeds *kdtree.KDTree, t task) int {
	z := w.Z.Value(t.iz)

	ix0, iz0 := -1, -1
	singular := 0
	for ix := 0; ix < w.X.N; ix++ {
		p := vec2.T{w.X.Value(ix), z}
		out := w.Index(t.ie, ix, t.iz)

		if seeds == nil || !s.Bounds.Contains(p) {
			w.EX[out], w.EZ[out] = 0, 0
			continue
		}

		if ix0 < 0 {
			ref, ok := seeds.Nearest(p)
			if !ok {
				w.EX[out], w.EZ[out] = 0, 0
				continue
			}
			ix0, iz0 = ref%w.X.N, ref/w.X.N
		}

		ix0, iz0 = l.findAnchor(p, ix0, iz0)

		st, ok := l.build(mode, p, ix0, iz0)
		if !ok {
			w.EX[out], w.EZ[out] = 0, 0
			continue
		}
		if st.singular {
			singular++
		}
		w.EX[out] = st.apply(s.EX)
		w.EZ[out] = st.apply(s.EZ)
	}
	return singular
}
