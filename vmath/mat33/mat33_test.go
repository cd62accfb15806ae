package mat33

import (
	"math"
	"testing"

	"row-major/thickmirror/vmath/vec3"
)

func TestSolveInplace(t *testing.T) {
	m := T{
		2, 1, 0,
		0, 3, 1,
		1, 0, 4,
	}
	orig := m

	a := Identity()
	if !SolveInplace(&m, &a) {
		t.Fatalf("SolveInplace reported singular matrix")
	}

	prod := MulMM(orig, a)
	want := Identity()
	for i := range prod {
		if math.Abs(prod[i]-want[i]) > 1e-14 {
			t.Fatalf("m * m^-1 = %v, want identity", prod)
		}
	}
}

func TestSolveInplaceSingular(t *testing.T) {
	m := T{
		1, 2, 3,
		2, 4, 6,
		0, 0, 1,
	}
	a := Identity()
	if SolveInplace(&m, &a) {
		t.Errorf("SolveInplace of singular matrix reported ok")
	}
}

func TestColumnsRoundTrip(t *testing.T) {
	a, b, c := vec3.T{1, 2, 3}, vec3.T{4, 5, 6}, vec3.T{7, 8, 9}
	m := FromColumns(a, b, c)
	for i, want := range []vec3.T{a, b, c} {
		if got := m.Column(i); got != want {
			t.Errorf("Column(%d) = %v, want %v", i, got, want)
		}
	}
	if got, want := Transpose(m).Column(1), (vec3.T{2, 5, 8}); got != want {
		t.Errorf("row 1 of m = %v, want %v", got, want)
	}
}
