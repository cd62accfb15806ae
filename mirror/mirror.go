// Package mirror builds a thick reflective element: its frame relative to the
// incident beam, its optical axes, the output-beam basis and the longitudinal
// extents that bound the ray-traced region.
package mirror

import (
	"fmt"
	"math"

	"github.com/golang/glog"

	"row-major/thickmirror/frame"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/ray"
	"row-major/thickmirror/surface"
	"row-major/thickmirror/vmath/vec2"
	"row-major/thickmirror/vmath/vec3"
	"row-major/thickmirror/wavefront"
)

type Method uint8

const (
	MethodRayTrace       Method = 1
	MethodFourierByParts Method = 2
)

func (m Method) String() string {
	switch m {
	case MethodRayTrace:
		return "local ray tracing"
	case MethodFourierByParts:
		return "fourier by parts"
	}
	return fmt.Sprintf("Method(%d)", uint8(m))
}

// TreatInOut selects where rays start and end relative to the element.
type TreatInOut uint8

const (
	// Rays start ExtIn before the element and end ExtOut after it.
	TreatFromPlanes TreatInOut = 0

	// Rays start and end at the element center.
	TreatAtCenter TreatInOut = 1

	// As TreatFromPlanes, with the field drifted back by the extents before
	// and after so the element acts at its center plane.
	TreatWithDrifts TreatInOut = 2
)

// Params is the element description independent of surface shape.
type Params struct {
	// Central normal in the beam frame.  Normalized internally.
	Normal vec3.T

	// Transverse components of the central tangent; the longitudinal one is
	// completed from orthogonality.
	Tangent vec2.T

	// Transverse position of the element center in the beam frame.
	Center vec2.T

	Method Method

	// Surface sampling hints for footprint reports.
	NPointsTangential int
	NPointsSagittal   int

	TreatInOut TreatInOut

	// Longitudinal extents before and after the element.  When both are zero
	// they are derived from the aperture corners.
	ExtIn, ExtOut float64
}

type Element struct {
	params  Params
	surface surface.Surface
	frame   *frame.Frame

	// Optical axes and central hit, in the local frame.
	axisIn, axisOut vec3.T
	centralHit      vec3.T

	// Output transverse basis, in the beam frame.
	hor, ver vec3.T

	extIn, extOut float64

	focalX, focalZ float64
}

// rotationTol is the norm of d_in x d_out below which the output basis is
// taken as the degenerate (mirror-image) one.
const rotationTol = 1e-10

func New(p Params, s surface.Surface) (*Element, error) {
	if p.Method != MethodRayTrace && p.Method != MethodFourierByParts {
		return nil, opterr.Newf(opterr.InvalidParameter, "unknown propagation method %d", p.Method)
	}
	if p.TreatInOut > TreatWithDrifts {
		return nil, opterr.Newf(opterr.InvalidParameter, "unknown in/out treatment %d", p.TreatInOut)
	}
	if s == nil {
		return nil, opterr.Newf(opterr.InvalidParameter, "no surface")
	}

	f, err := frame.New(p.Normal, p.Tangent, p.Center)
	if err != nil {
		return nil, fmt.Errorf("while building element frame: %w", err)
	}

	e := &Element{
		params:  p,
		surface: s,
		frame:   f,
		extIn:   p.ExtIn,
		extOut:  p.ExtOut,
	}

	if err := e.findOpticalAxes(); err != nil {
		return nil, err
	}
	e.findOutputBasis()
	if e.extIn == 0 && e.extOut == 0 {
		e.findExtents()
	}

	radTan, radSag := s.Radii()
	e.focalX, e.focalZ = e.EstimateFocalLengths(radTan, radSag)

	if glog.V(2) {
		glog.Infof("Element frame: normal=%v tangent=%v center=%v", f.Normal(), f.Tangent(), f.Center())
		glog.Infof("Optical axes (local): in=%v out=%v hit=%v", e.axisIn, e.axisOut, e.centralHit)
		glog.Infof("Output basis: hor=%v ver=%v", e.hor, e.ver)
		glog.Infof("Extents: in=%v out=%v; focal lengths: x=%v z=%v", e.extIn, e.extOut, e.focalX, e.focalZ)
	}
	return e, nil
}

func (e *Element) findOpticalAxes() error {
	vIn := vec3.Normalize(e.frame.VectorToLocal(vec3.UnitZ))
	origin := e.frame.PointToLocal(vec3.T{})

	c, err := e.surface.Intersect(ray.RaySegment{
		TheRay:     ray.Ray{Point: origin, Slope: vIn},
		TheSegment: ray.FullSpan(),
	})
	if err != nil {
		return opterr.New(opterr.NoOpticalAxis, "nominal beam axis misses the surface", err)
	}

	e.axisIn = vIn
	e.axisOut = vec3.Normalize(vec3.Reflect(vIn, c.N))
	e.centralHit = c.P
	return nil
}

func (e *Element) findOutputBasis() {
	axis := vec3.CProd(e.axisIn, e.axisOut)
	if axis.Norm() < rotationTol {
		e.hor = vec3.T{-1, 0, 0}
		e.ver = vec3.T{0, 1, 0}
		return
	}

	cosAng := vec3.IProd(e.axisIn, e.axisOut)
	angle := math.Acos(math.Max(-1, math.Min(1, cosAng)))
	axisBeam := e.frame.VectorToBeam(axis)
	e.hor = vec3.RotateAbout(vec3.UnitX, axisBeam, angle)
	e.ver = vec3.RotateAbout(vec3.UnitY, axisBeam, angle)
}

func (e *Element) findExtents() {
	long := vec3.CProd(e.hor, e.ver)

	minIn := math.Inf(1)
	maxOut := math.Inf(-1)
	for _, c := range e.surface.Aperture().Corners() {
		r := e.frame.PointToBeam(c)
		minIn = math.Min(minIn, r[2])
		maxOut = math.Max(maxOut, vec3.IProd(r, long))
	}
	e.extIn = math.Abs(minIn)
	e.extOut = maxOut
}

// EstimateFocalLengths converts the surface radii into horizontal and
// vertical focal lengths, accounting for the incidence angle and for which
// transverse direction the tangent and normal lean toward.
func (e *Element) EstimateFocalLengths(radTan, radSag float64) (fx, fz float64) {
	n := e.frame.Normal()
	t := e.frame.Tangent()
	cosAng := math.Abs(n[2])

	tangentVertical := math.Abs(t[0]) < math.Abs(t[1])
	normalVertical := math.Abs(n[0]) < math.Abs(n[1])

	switch {
	case tangentVertical && normalVertical:
		return 0.5 * radSag / cosAng, 0.5 * radTan * cosAng
	case tangentVertical:
		return 0.5 * radSag * cosAng, 0.5 * radTan / cosAng
	case normalVertical:
		return 0.5 * radTan / cosAng, 0.5 * radSag * cosAng
	default:
		return 0.5 * radTan * cosAng, 0.5 * radSag / cosAng
	}
}

// UpdateRadii applies the element's thin-lens action to the wavefront
// curvature radii.
func (e *Element) UpdateRadii(w *wavefront.Wavefront) {
	w.RadiusX = lensRadius(w.RadiusX, e.focalX)
	w.RadiusZ = lensRadius(w.RadiusZ, e.focalZ)
}

func lensRadius(r, f float64) float64 {
	if math.IsInf(f, 0) {
		return r
	}
	inv := 1/r - 1/f
	if inv == 0 {
		return wavefront.CollimatedRadius
	}
	return 1 / inv
}

func (e *Element) Params() Params { return e.params }

func (e *Element) Surface() surface.Surface { return e.surface }

func (e *Element) Frame() *frame.Frame { return e.frame }

// InputAxis is the unit incident axis in the local frame.
func (e *Element) InputAxis() vec3.T { return e.axisIn }

// OutputAxis is the unit reflected axis in the local frame.
func (e *Element) OutputAxis() vec3.T { return e.axisOut }

// CentralHit is where the nominal beam axis meets the surface, in the local
// frame.
func (e *Element) CentralHit() vec3.T { return e.centralHit }

// OutputBasis returns the output beam's horizontal and vertical unit vectors
// in the beam frame.
func (e *Element) OutputBasis() (hor, ver vec3.T) { return e.hor, e.ver }

func (e *Element) Extents() (in, out float64) { return e.extIn, e.extOut }

func (e *Element) FocalLengths() (fx, fz float64) { return e.focalX, e.focalZ }
