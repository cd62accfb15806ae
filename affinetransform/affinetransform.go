package affinetransform

import (
	"row-major/thickmirror/vmath/mat33"
	"row-major/thickmirror/vmath/vec3"
)

// AffineTransform maps p to Linear*p + Offset.
type AffineTransform struct {
	Linear mat33.T
	Offset vec3.T
}

func Identity() AffineTransform {
	return AffineTransform{
		Linear: mat33.Identity(),
		Offset: vec3.T{0.0, 0.0, 0.0},
	}
}

func Translate(x vec3.T) AffineTransform {
	result := Identity()
	result.Offset = x
	return result
}

// Compose returns the transform that applies b first, then a.
func Compose(a, b AffineTransform) AffineTransform {
	return AffineTransform{
		Linear: mat33.MulMM(a.Linear, b.Linear),
		Offset: vec3.AddVV(a.Offset, mat33.MulMV(a.Linear, b.Offset)),
	}
}

// InvertRigid inverts a transform whose linear part is a rotation, using the
// transpose.  The result is exact to rounding for orthonormal Linear.
func (t AffineTransform) InvertRigid() AffineTransform {
	inv := mat33.Transpose(t.Linear)
	return AffineTransform{
		Linear: inv,
		Offset: vec3.MulVS(mat33.MulMV(inv, t.Offset), -1),
	}
}

func TransformPoint(a AffineTransform, b vec3.T) vec3.T {
	return vec3.AddVV(mat33.MulMV(a.Linear, b), a.Offset)
}

// TransformVector applies only the linear part, as befits free vectors.
func TransformVector(a AffineTransform, b vec3.T) vec3.T {
	return mat33.MulMV(a.Linear, b)
}
