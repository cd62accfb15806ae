// Package aabox tracks axis-aligned bounds of transverse (x, z) coordinates.
package aabox

import (
	"math"

	"row-major/thickmirror/ray"
	"row-major/thickmirror/vmath/vec2"
)

type AABox struct {
	X, Z ray.Span
}

// AccumZero is the empty box, the identity for Union.
func AccumZero() AABox {
	return AABox{
		X: ray.Span{Lo: math.Inf(1), Hi: math.Inf(-1)},
		Z: ray.Span{Lo: math.Inf(1), Hi: math.Inf(-1)},
	}
}

func minContainingSpan(a, b ray.Span) ray.Span {
	return ray.Span{Lo: math.Min(a.Lo, b.Lo), Hi: math.Max(a.Hi, b.Hi)}
}

func Union(a, b AABox) AABox {
	return AABox{
		X: minContainingSpan(a.X, b.X),
		Z: minContainingSpan(a.Z, b.Z),
	}
}

func GrowToPoint(a AABox, p vec2.T) AABox {
	return AABox{
		X: minContainingSpan(a.X, ray.Span{Lo: p[0], Hi: p[0]}),
		Z: minContainingSpan(a.Z, ray.Span{Lo: p[1], Hi: p[1]}),
	}
}

func (a AABox) IsEmpty() bool {
	return a.X.Lo > a.X.Hi || a.Z.Lo > a.Z.Hi
}

// Contains includes the boundary.
func (a AABox) Contains(p vec2.T) bool {
	return a.X.Contains(p[0]) && a.Z.Contains(p[1])
}

// MinDist2 is the squared distance from p to the nearest point of the box.
func (a AABox) MinDist2(p vec2.T) float64 {
	dx := math.Max(0, math.Max(a.X.Lo-p[0], p[0]-a.X.Hi))
	dz := math.Max(0, math.Max(a.Z.Lo-p[1], p[1]-a.Z.Hi))
	return dx*dx + dz*dz
}
