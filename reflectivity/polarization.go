package reflectivity

import (
	"math"

	"row-major/thickmirror/vmath/vec3"
)

// Basis returns the sigma and pi unit vectors for a ray with unit direction
// dir meeting a surface with unit normal n, plus the grazing angle.  dir and
// n share one frame; toBeam, when not nil, maps the resulting vectors into
// the beam frame.  At normal incidence, where the plane of incidence is
// undefined, sigma and pi are the beam's transverse axes and the angle is
// pi/2.
func Basis(dir, n vec3.T, toBeam func(vec3.T) vec3.T) (sigma, pi vec3.T, graz float64) {
	s := vec3.MulVS(vec3.CProd(dir, n), -1)
	if s.IsZero() {
		return vec3.UnitX, vec3.UnitY, math.Pi / 2
	}

	cosAng := math.Max(-1, math.Min(1, vec3.IProd(dir, n)))
	graz = math.Acos(cosAng) - math.Pi/2
	sigma = vec3.Normalize(s)
	pi = vec3.CProd(dir, sigma)
	if toBeam != nil {
		sigma, pi = toBeam(sigma), toBeam(pi)
	}
	return sigma, pi, graz
}

// Reflect applies the coefficients and the propagation phase rotation rot to
// the horizontal/vertical field (ex, ez), scaled by amp.  sigma and pi are in
// the beam frame.
//
// The field keeps its channels: the output horizontal channel is the input
// horizontal channel carried along the ray.  Only the departure of rs and rp
// from 1 mixes the channels, through the projections on sigma and pi.  Unit
// coefficients therefore give exactly amp*rot*(ex, ez).
func Reflect(ex, ez complex128, sigma, pi vec3.T, rs, rp, rot complex128, amp float64) (complex128, complex128) {
	eSig := ex*complex(sigma[0], 0) + ez*complex(sigma[1], 0)
	ePi := ex*complex(pi[0], 0) + ez*complex(pi[1], 0)

	dSig := (rs - 1) * eSig * rot
	dPi := (rp - 1) * ePi * rot

	dx := dSig*complex(sigma[0], 0) + dPi*complex(pi[0], 0)
	dz := dSig*complex(sigma[1], 0) + dPi*complex(pi[1], 0)

	a := complex(amp, 0)
	outX := a * (complex128(ex*rot) + dx)
	outZ := a * (complex128(ez*rot) + dz)
	return outX, outZ
}
