package vec3

import (
	"math"
)

type T [3]float64

var (
	UnitX = T{1, 0, 0}
	UnitY = T{0, 1, 0}
	UnitZ = T{0, 0, 1}
)

func (v T) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// IsZero reports whether all three components are exactly zero.
func (v T) IsZero() bool {
	return v[0] == 0 && v[1] == 0 && v[2] == 0
}

func Normalize(v T) T {
	l := v.Norm()
	return T{
		v[0] / l,
		v[1] / l,
		v[2] / l,
	}
}

func AddVV(a, b T) T {
	return T{
		a[0] + b[0],
		a[1] + b[1],
		a[2] + b[2],
	}
}

func SubVV(a, b T) T {
	return T{
		a[0] - b[0],
		a[1] - b[1],
		a[2] - b[2],
	}
}

func MulVS(a T, b float64) T {
	return T{
		a[0] * b,
		a[1] * b,
		a[2] * b,
	}
}

func DivVS(a T, b float64) T {
	return T{
		a[0] / b,
		a[1] / b,
		a[2] / b,
	}
}

func IProd(a, b T) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func CProd(a, b T) T {
	return T{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Reflect mirrors a about the plane with unit normal n.
func Reflect(a, n T) T {
	return SubVV(a, MulVS(n, 2*IProd(a, n)))
}

// RotateAbout rotates v by angle (right-handed) about axis, which need not be
// normalized.  A zero axis leaves v unchanged.
func RotateAbout(v, axis T, angle float64) T {
	l := axis.Norm()
	if l == 0 {
		return v
	}
	k := DivVS(axis, l)
	c, s := math.Cos(angle), math.Sin(angle)

	// Rodrigues: v cos + (k x v) sin + k (k.v)(1 - cos)
	return AddVV(
		AddVV(MulVS(v, c), MulVS(CProd(k, v), s)),
		MulVS(k, IProd(k, v)*(1-c)),
	)
}
