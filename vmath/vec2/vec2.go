package vec2

import "math"

// T is a transverse (x, z) coordinate pair.
type T [2]float64

func (v T) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1])
}

func AddVV(a, b T) T {
	return T{a[0] + b[0], a[1] + b[1]}
}

func SubVV(a, b T) T {
	return T{a[0] - b[0], a[1] - b[1]}
}

func IProd(a, b T) float64 {
	return a[0]*b[0] + a[1]*b[1]
}

// Dist2 is the squared distance between a and b.
func Dist2(a, b T) float64 {
	dx := a[0] - b[0]
	dz := a[1] - b[1]
	return dx*dx + dz*dz
}
