package contact

import (
	"math"

	"row-major/thickmirror/affinetransform"
	"row-major/thickmirror/ray"
	"row-major/thickmirror/vmath/vec3"
)

// Contact records where a ray met a surface: the ray parameter, the incoming
// ray, the hit point and the unit surface normal there.  Normals are oriented
// like the local +Z axis of the surface.
type Contact struct {
	T float64
	R ray.Ray
	P vec3.T
	N vec3.T
}

func ContactNaN() Contact {
	return Contact{
		T: math.NaN(),
	}
}

// Transform applies a rigid transform to a contact.  The normal is treated as
// a free vector, which is exact for rotations.
func (c Contact) Transform(t affinetransform.AffineTransform) Contact {
	result := c
	result.R = c.R.Transform(t)
	result.P = affinetransform.TransformPoint(t, c.P)
	result.N = affinetransform.TransformVector(t, c.N)
	return result
}
