package resample

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"row-major/thickmirror/vmath/mat33"
	"row-major/thickmirror/vmath/vec2"
)

const (
	// Offsets beyond dMax come from untraced samples.
	dMax = 1e20

	// Relative tolerance for calling a neighbourhood rectangular.
	relTolEqualStep = 1e-4
)

// layer is the traced coordinate map of one photon energy.
type layer struct {
	nx, nz int
	coord  func(ix, iz int) vec2.T
	index  func(ix, iz int) int
}

func (l *layer) dist(ix, iz int, p vec2.T) float64 {
	return vec2.SubVV(p, l.coord(ix, iz)).Norm()
}

// descend walks from i0 along one axis toward decreasing distance, trying
// lower indices first.  Leading untraced samples are skipped.
func descend(n, i0 int, dist func(i int) float64) int {
	d0 := dist(i0)

	best, bestD := i0, d0
	cand := false
	for i := i0 - 1; i >= 0; i-- {
		d := dist(i)
		if d > dMax && !cand {
			continue
		}
		if d >= bestD {
			break
		}
		best, bestD, cand = i, d, true
	}
	if cand {
		return best
	}

	for i := i0 + 1; i < n; i++ {
		d := dist(i)
		if d > dMax && !cand {
			continue
		}
		if d >= bestD {
			break
		}
		best, bestD, cand = i, d, true
	}
	return best
}

// findAnchor searches from (ix0, iz0) for the traced sample nearest p,
// alternating x and z sweeps until neither index moves.
func (l *layer) findAnchor(p vec2.T, ix0, iz0 int) (int, int) {
	for iter := 0; iter < l.nx+l.nz+2; iter++ {
		prevX, prevZ := ix0, iz0

		iz := iz0
		ix0 = descend(l.nx, ix0, func(i int) float64 { return l.dist(i, iz, p) })
		ix := ix0
		iz0 = descend(l.nz, iz0, func(i int) float64 { return l.dist(ix, i, p) })

		if ix0 == prevX && iz0 == prevZ {
			break
		}
	}
	return ix0, iz0
}

// stencil is an interpolant expressed as weights over sample indices, so it
// can be applied to both field channels.
type stencil struct {
	idx [8]int
	w   [8]float64
	n   int

	// singular marks an irregular solve that fell back to the anchor value.
	singular bool
}

// add accumulates w onto sample idx.
func (s *stencil) add(idx int, w float64) {
	for i := 0; i < s.n; i++ {
		if s.idx[i] == idx {
			s.w[i] += w
			return
		}
	}
	s.idx[s.n] = idx
	s.w[s.n] = w
	s.n++
}

func (s *stencil) addNode(nd node, w float64) {
	for _, t := range nd.terms[:nd.n] {
		s.add(t.idx, w*t.w)
	}
}

func (s *stencil) apply(f []complex128) complex128 {
	var sum complex128
	for i := 0; i < s.n; i++ {
		sum += complex(s.w[i], 0) * f[s.idx[i]]
	}
	return sum
}

type term struct {
	idx int
	w   float64
}

// node is a neighbour of the anchor: its offset from the anchor and its
// value as a combination of samples.  A neighbour that was not traced is
// replaced by a ghost extrapolated linearly through the anchor, so stencils
// stay exact for linear fields up to the rim of the traced region.
type node struct {
	r     vec2.T
	terms [4]term
	n     int
}

func (nd *node) add(idx int, w float64) {
	for i := 0; i < nd.n; i++ {
		if nd.terms[i].idx == idx {
			nd.terms[i].w += w
			return
		}
	}
	nd.terms[nd.n] = term{idx, w}
	nd.n++
}

func (l *layer) node(ix, iz int, c00 vec2.T) node {
	nd := node{r: vec2.SubVV(l.coord(ix, iz), c00)}
	nd.add(l.index(ix, iz), 1)
	return nd
}

// untraced reports whether either offset component comes from an untraced
// sample.
func (nd node) untraced() bool {
	return math.Abs(nd.r[0]) > dMax || math.Abs(nd.r[1]) > dMax
}

// ghost mirrors good through the anchor: f = 2 f00 - f(good).
func ghost(good node, i00 int) node {
	nd := node{r: vec2.T{-good.r[0], -good.r[1]}}
	nd.add(i00, 2)
	for _, t := range good.terms[:good.n] {
		nd.add(t.idx, -t.w)
	}
	return nd
}

// diagonal completes the parallelogram on x and z: f = f(x) + f(z) - f00.
func diagonal(x, z node, i00 int) node {
	nd := node{r: vec2.AddVV(x.r, z.r)}
	nd.add(i00, -1)
	for _, t := range x.terms[:x.n] {
		nd.add(t.idx, t.w)
	}
	for _, t := range z.terms[:z.n] {
		nd.add(t.idx, t.w)
	}
	return nd
}

// neighbours returns the indices either side of i, collapsed onto i at the
// mesh edges.
func neighbours(i, n int) (lo, hi int) {
	lo, hi = i-1, i+1
	if lo < 0 {
		lo = i
	}
	if hi > n-1 {
		hi = i
	}
	return lo, hi
}

// isBad reports an axis offset that cannot span a stencil: untraced, or the
// anchor itself.
func isBad(r float64) bool {
	return math.Abs(r) > dMax || r == 0
}

// build constructs the stencil for target p around anchor (ix0, iz0).  ok is
// false when both neighbours along one axis are unusable and the point must
// be zeroed.
func (l *layer) build(mode Mode, p vec2.T, ix0, iz0 int) (stencil, bool) {
	ixm, ixp := neighbours(ix0, l.nx)
	izm, izp := neighbours(iz0, l.nz)

	c00 := l.coord(ix0, iz0)
	i00 := l.index(ix0, iz0)
	d := vec2.SubVV(p, c00)

	xm, xp := l.node(ixm, iz0, c00), l.node(ixp, iz0, c00)
	zm, zp := l.node(ix0, izm, c00), l.node(ix0, izp, c00)

	badXm, badXp := isBad(xm.r[0]), isBad(xp.r[0])
	badZm, badZp := isBad(zm.r[1]), isBad(zp.r[1])
	if (badXm && badXp) || (badZm && badZp) {
		return stencil{}, false
	}

	if mode == BiQuadratic {
		if badXm {
			xm = ghost(xp, i00)
		} else if badXp {
			xp = ghost(xm, i00)
		}
		if badZm {
			zm = ghost(zp, i00)
		} else if badZp {
			zp = ghost(zm, i00)
		}
		return l.biQuadratic(d, i00, xm, xp, zm, zp), true
	}

	// Take the cell on the side of the anchor that holds the target, unless
	// that side was not traced.
	x, ix1 := xp, ixp
	if badXp || (!badXm && vec2.IProd(xp.r, d) < 0 && vec2.IProd(xm.r, d) > 0) {
		x, ix1 = xm, ixm
	}
	z, iz1 := zp, izp
	if badZp || (!badZm && vec2.IProd(zp.r, d) < 0 && vec2.IProd(zm.r, d) > 0) {
		z, iz1 = zm, izm
	}
	xz := l.node(ix1, iz1, c00)
	if xz.untraced() {
		xz = diagonal(x, z, i00)
	}
	return l.biLinear(d, i00, x, z, xz), true
}

func (l *layer) biLinear(d vec2.T, i00 int, x, z, xz node) stencil {
	tolX := relTolEqualStep * math.Abs(x.r[0])
	tolZ := relTolEqualStep * math.Abs(z.r[1])
	isRecX := math.Abs(z.r[0]) < tolX && math.Abs(xz.r[0]-x.r[0]) < tolX
	isRecZ := math.Abs(x.r[1]) < tolZ && math.Abs(xz.r[1]-z.r[1]) < tolZ

	s := stencil{}
	if isRecX && isRecZ {
		xt := d[0] / x.r[0]
		zt := d[1] / z.r[1]
		s.add(i00, 1-xt-zt+xt*zt)
		s.addNode(x, xt-xt*zt)
		s.addNode(z, zt-xt*zt)
		s.addNode(xz, xt*zt)
		return s
	}

	// General quadrilateral: f = f00 + a10 x + a01 z + a11 x z through the
	// three other corners.  Coordinates are scaled to unit size first.
	sx, sz := scaleOf(x.r[0], xz.r[0]), scaleOf(z.r[1], xz.r[1])
	pts := [3]vec2.T{x.r, z.r, xz.r}
	var m, rhs mat33.T
	for i, q := range pts {
		qx, qz := q[0]/sx, q[1]/sz
		// Row of M^T is column of M.
		m[0*3+i] = qx
		m[1*3+i] = qz
		m[2*3+i] = qx * qz
	}
	tx, tz := d[0]/sx, d[1]/sz
	rhs[0], rhs[3], rhs[6] = tx, tz, tx*tz

	if !mat33.SolveInplace(&m, &rhs) {
		s.add(i00, 1)
		s.singular = true
		return s
	}
	w10, w01, w11 := rhs[0], rhs[3], rhs[6]
	s.add(i00, 1-w10-w01-w11)
	s.addNode(x, w10)
	s.addNode(z, w01)
	s.addNode(xz, w11)
	return s
}

func scaleOf(a, b float64) float64 {
	s := math.Max(math.Abs(a), math.Abs(b))
	if s == 0 {
		return 1
	}
	return s
}

func (l *layer) biQuadratic(d vec2.T, i00 int, xm, xp, zm, zp node) stencil {
	tolX := relTolEqualStep * math.Abs(xp.r[0])
	tolZ := relTolEqualStep * math.Abs(zp.r[1])
	isRecX := math.Abs(zm.r[0]) < tolX && math.Abs(zp.r[0]) < tolX
	isRecZ := math.Abs(xm.r[1]) < tolZ && math.Abs(xp.r[1]) < tolZ

	s := stencil{}
	if isRecX && isRecZ {
		isEquidistX := math.Abs(xm.r[0]+xp.r[0]) < tolX
		isEquidistZ := math.Abs(zm.r[1]+zp.r[1]) < tolZ
		if isEquidistX && isEquidistZ {
			xt := d[0] / xp.r[0]
			zt := d[1] / zp.r[1]
			s.add(i00, 1-xt*xt-zt*zt)
			s.addNode(xp, 0.5*(xt*xt+xt))
			s.addNode(xm, 0.5*(xt*xt-xt))
			s.addNode(zp, 0.5*(zt*zt+zt))
			s.addNode(zm, 0.5*(zt*zt-zt))
			return s
		}

		// Unequal steps: fit f00 + a1 t + a2 t^2 through the two neighbours
		// on each axis.
		wX, wXm := quadWeights(d[0], xp.r[0], xm.r[0])
		wZ, wZm := quadWeights(d[1], zp.r[1], zm.r[1])
		s.add(i00, 1-wX-wXm-wZ-wZm)
		s.addNode(xp, wX)
		s.addNode(xm, wXm)
		s.addNode(zp, wZ)
		s.addNode(zm, wZm)
		return s
	}

	// General case: f = f00 + a10 x + a01 z + a20 x^2 + a02 z^2 through the
	// four neighbours.
	sx := scaleOf(xp.r[0], xm.r[0])
	sz := scaleOf(zp.r[1], zm.r[1])
	nodes := [4]node{zm, xm, xp, zp}
	mt := mat.NewDense(4, 4, nil)
	for i, nd := range nodes {
		x, z := nd.r[0]/sx, nd.r[1]/sz
		mt.Set(0, i, x)
		mt.Set(1, i, z)
		mt.Set(2, i, x*x)
		mt.Set(3, i, z*z)
	}
	x, z := d[0]/sx, d[1]/sz
	c := mat.NewVecDense(4, []float64{x, z, x * x, z * z})

	var w mat.VecDense
	if err := w.SolveVec(mt, c); err != nil {
		s.add(i00, 1)
		s.singular = true
		return s
	}
	s.add(i00, 1-w.AtVec(0)-w.AtVec(1)-w.AtVec(2)-w.AtVec(3))
	for i, nd := range nodes {
		s.addNode(nd, w.AtVec(i))
	}
	return s
}

// quadWeights returns the weights of f(x1) - f(0) and f(xm) - f(0) in the
// parabola through (0, f(0)), (x1, f(x1)), (xm, f(xm)) evaluated at t.
func quadWeights(t, x1, xm float64) (w1, wm float64) {
	det := x1 * xm * (xm - x1)
	w1 = (t*xm*xm - t*t*xm) / det
	wm = (t*t*x1 - t*x1*x1) / det
	return w1, wm
}
