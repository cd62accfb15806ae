// Package frame builds the rigid transform between an optical element's local
// surface frame and the frame of the incident beam.
//
// In the local frame X is tangential, Y is sagittal and Z is the surface
// normal at the element center.  In the beam frame the nominal propagation
// direction is +Z.
package frame

import (
	"row-major/thickmirror/affinetransform"
	"row-major/thickmirror/opterr"
	"row-major/thickmirror/vmath/mat33"
	"row-major/thickmirror/vmath/vec2"
	"row-major/thickmirror/vmath/vec3"
)

type Frame struct {
	localToBeam affinetransform.AffineTransform
	beamToLocal affinetransform.AffineTransform
}

// New builds the element frame from the central surface normal (beam frame),
// the transverse components of the central tangent, and the transverse
// position of the element center.  The tangent's longitudinal component is
// completed so that it is orthogonal to the normal.
func New(normal vec3.T, tangent vec2.T, center vec2.T) (*Frame, error) {
	if normal[2] == 0 {
		return nil, opterr.Newf(opterr.InvalidOrientation, "central normal %v has no component along the beam axis", normal)
	}
	if tangent[0] == 0 && tangent[1] == 0 {
		return nil, opterr.Newf(opterr.InvalidOrientation, "central tangent %v has zero transverse magnitude", tangent)
	}

	n := vec3.Normalize(normal)
	tz := (-n[0]*tangent[0] - n[1]*tangent[1]) / n[2]
	t := vec3.Normalize(vec3.T{tangent[0], tangent[1], tz})

	rot := affinetransform.AffineTransform{Linear: mat33.FromColumns(t, vec3.CProd(n, t), n)}
	toBeam := affinetransform.Compose(affinetransform.Translate(vec3.T{center[0], center[1], 0}), rot)

	return &Frame{
		localToBeam: toBeam,
		beamToLocal: toBeam.InvertRigid(),
	}, nil
}

// Normal is the unit central normal in the beam frame.
func (f *Frame) Normal() vec3.T { return f.localToBeam.Linear.Column(2) }

// Tangent is the unit central tangent in the beam frame.
func (f *Frame) Tangent() vec3.T { return f.localToBeam.Linear.Column(0) }

// Center is the frame origin expressed in the beam frame.
func (f *Frame) Center() vec3.T { return f.localToBeam.Offset }

func (f *Frame) PointToBeam(p vec3.T) vec3.T {
	return affinetransform.TransformPoint(f.localToBeam, p)
}

func (f *Frame) PointToLocal(p vec3.T) vec3.T {
	return affinetransform.TransformPoint(f.beamToLocal, p)
}

func (f *Frame) VectorToBeam(v vec3.T) vec3.T {
	return affinetransform.TransformVector(f.localToBeam, v)
}

func (f *Frame) VectorToLocal(v vec3.T) vec3.T {
	return affinetransform.TransformVector(f.beamToLocal, v)
}

// LocalToBeam exposes the underlying transform.
func (f *Frame) LocalToBeam() affinetransform.AffineTransform { return f.localToBeam }
