// Package reflectivity holds complex sigma/pi reflection coefficients tabulated
// over photon energy and grazing angle, and applies them to a reflected field.
package reflectivity

import (
	"fmt"
	"math"

	"row-major/thickmirror/opterr"
)

type Scale uint8

const (
	Linear      Scale = 1
	Logarithmic Scale = 2
)

func (s Scale) String() string {
	switch s {
	case Linear:
		return "lin"
	case Logarithmic:
		return "log"
	}
	return fmt.Sprintf("Scale(%d)", uint8(s))
}

func ParseScale(s string) (Scale, error) {
	switch s {
	case "lin", "linear":
		return Linear, nil
	case "log", "logarithmic":
		return Logarithmic, nil
	}
	return 0, opterr.Newf(opterr.InvalidParameter, "unknown axis scale %q", s)
}

// Axis is a sampling of [Start, Final] with N points, evenly spaced in the
// value or in its base-10 logarithm.
type Axis struct {
	Start, Final float64
	N            int
	Scale        Scale
}

func NewAxis(start, final float64, n int, scale Scale) (Axis, error) {
	if n < 1 {
		return Axis{}, opterr.Newf(opterr.InvalidParameter, "axis needs at least one point, got %d", n)
	}
	switch scale {
	case Linear:
	case Logarithmic:
		if !(start > 0) || !(final > 0) {
			return Axis{}, opterr.Newf(opterr.InvalidParameter, "logarithmic axis bounds must be positive, got [%v, %v]", start, final)
		}
	default:
		return Axis{}, opterr.Newf(opterr.InvalidParameter, "unknown axis scale %d", scale)
	}
	return Axis{Start: start, Final: final, N: n, Scale: scale}, nil
}

// step is the spacing in the axis' own scale.
func (a Axis) step() float64 {
	if a.N < 2 {
		return 0
	}
	if a.Scale == Logarithmic {
		return (math.Log10(a.Final) - math.Log10(a.Start)) / float64(a.N-1)
	}
	return (a.Final - a.Start) / float64(a.N-1)
}

// Value is the coordinate of point i.
func (a Axis) Value(i int) float64 {
	if a.Scale == Logarithmic {
		return math.Pow(10, math.Log10(a.Start)+float64(i)*a.step())
	}
	return a.Start + float64(i)*a.step()
}

// Index returns the nearest sample to v, clamped to the axis.
func (a Axis) Index(v float64) int {
	step := a.step()
	if step == 0 {
		return 0
	}

	start := a.Start
	if a.Scale == Logarithmic {
		if !(v > 0) {
			return 0
		}
		v = math.Log10(v)
		start = math.Log10(a.Start)
	}

	u := (v - start) / step
	q := u + 1e-5
	if math.IsNaN(q) || q < 0 {
		return 0
	}
	if q >= float64(a.N-1) {
		return a.N - 1
	}
	i := int(q)
	if u-float64(i) > 0.5 {
		i++
	}
	if i > a.N-1 {
		i = a.N - 1
	}
	return i
}

type Component int

const (
	Sigma Component = 0
	Pi    Component = 1
)

// Table stores coefficients laid out as [angle][energy][component].
type Table struct {
	Energy Axis
	Angle  Axis
	Data   []complex128
}

func NewTable(energy, angle Axis) *Table {
	return &Table{
		Energy: energy,
		Angle:  angle,
		Data:   make([]complex128, energy.N*angle.N*2),
	}
}

// Constant is a table with the same coefficients in every bin.
func Constant(energy, angle Axis, rs, rp complex128) *Table {
	t := NewTable(energy, angle)
	for ia := 0; ia < angle.N; ia++ {
		for ie := 0; ie < energy.N; ie++ {
			t.Set(ia, ie, rs, rp)
		}
	}
	return t
}

func (t *Table) index(ia, ie int) int {
	return (ia*t.Energy.N + ie) * 2
}

func (t *Table) At(ia, ie int) (rs, rp complex128) {
	i := t.index(ia, ie)
	return t.Data[i+int(Sigma)], t.Data[i+int(Pi)]
}

func (t *Table) Set(ia, ie int, rs, rp complex128) {
	i := t.index(ia, ie)
	t.Data[i+int(Sigma)] = rs
	t.Data[i+int(Pi)] = rp
}

// Lookup returns the coefficients of the bin nearest (energy, angle).  The
// angle is the grazing angle in radians.
func (t *Table) Lookup(energy, angle float64) (rs, rp complex128) {
	return t.At(t.Angle.Index(angle), t.Energy.Index(energy))
}
