// Package kdtree answers nearest-point queries over transverse coordinates.
package kdtree

import (
	"math"
	"sort"

	"row-major/thickmirror/aabox"
	"row-major/thickmirror/vmath/vec2"
)

type KDElement struct {
	// A handle back into some other storage array.
	Ref int

	Point vec2.T
}

type KDNode struct {
	Bounds aabox.AABox

	Elements []KDElement

	LoChild *KDNode
	HiChild *KDNode
}

// split divides cur's elements at the median of its wider axis.
func (cur *KDNode) split() {
	axis := 0
	if cur.Bounds.Z.Hi-cur.Bounds.Z.Lo > cur.Bounds.X.Hi-cur.Bounds.X.Lo {
		axis = 1
	}

	sort.Slice(cur.Elements, func(i, j int) bool {
		a, b := cur.Elements[i], cur.Elements[j]
		if a.Point[axis] != b.Point[axis] {
			return a.Point[axis] < b.Point[axis]
		}
		return a.Ref < b.Ref
	})

	mid := len(cur.Elements) / 2
	preceding := cur.Elements[:mid:mid]
	succeeding := cur.Elements[mid:]

	cur.LoChild = newNode(preceding)
	cur.HiChild = newNode(succeeding)

	// All of cur's elements have been divided among its children.
	cur.Elements = nil
}

func newNode(elements []KDElement) *KDNode {
	bounds := aabox.AccumZero()
	for _, e := range elements {
		bounds = aabox.GrowToPoint(bounds, e.Point)
	}
	return &KDNode{
		Bounds:   bounds,
		Elements: elements,
	}
}

type KDTree struct {
	Root *KDNode
}

// NewKDTree builds a tree with at most leafSize elements per leaf.  Elements
// with non-finite points are dropped.
func NewKDTree(elements []KDElement, leafSize int) *KDTree {
	if leafSize < 1 {
		leafSize = 1
	}

	kept := make([]KDElement, 0, len(elements))
	for _, e := range elements {
		if isFinite(e.Point) {
			kept = append(kept, e)
		}
	}

	tree := &KDTree{Root: newNode(kept)}

	workStack := []*KDNode{tree.Root}
	for len(workStack) != 0 {
		cur := workStack[len(workStack)-1]
		workStack = workStack[:len(workStack)-1]

		if len(cur.Elements) <= leafSize {
			continue
		}

		cur.split()
		workStack = append(workStack, cur.LoChild, cur.HiChild)
	}

	return tree
}

func isFinite(p vec2.T) bool {
	return !math.IsNaN(p[0]) && !math.IsInf(p[0], 0) && !math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}

// Nearest returns the Ref of the element closest to p, breaking ties toward
// the smaller Ref.  ok is false for an empty tree.
func (t *KDTree) Nearest(p vec2.T) (ref int, ok bool) {
	best := math.Inf(1)
	ref = -1

	workStack := []*KDNode{t.Root}
	for len(workStack) != 0 {
		cur := workStack[len(workStack)-1]
		workStack = workStack[:len(workStack)-1]

		if cur.Bounds.IsEmpty() || cur.Bounds.MinDist2(p) > best {
			continue
		}

		for _, e := range cur.Elements {
			d := vec2.Dist2(e.Point, p)
			if d < best || (d == best && e.Ref < ref) {
				best = d
				ref = e.Ref
			}
		}

		if cur.LoChild == nil {
			continue
		}

		// Visit the nearer child first so the farther one is more often
		// pruned.
		lo, hi := cur.LoChild, cur.HiChild
		if lo.Bounds.MinDist2(p) < hi.Bounds.MinDist2(p) {
			lo, hi = hi, lo
		}
		workStack = append(workStack, lo, hi)
	}

	return ref, ref >= 0
}

type KDSelector func(b aabox.AABox) bool
type KDVisitor func(ref int)

// Query visits every element in a node whose bounds the selector accepts.
func (t *KDTree) Query(selector KDSelector, visitor KDVisitor) {
	workStack := []*KDNode{t.Root}
	for len(workStack) != 0 {
		cur := workStack[len(workStack)-1]
		workStack = workStack[:len(workStack)-1]

		if !selector(cur.Bounds) {
			continue
		}

		for i := range cur.Elements {
			visitor(cur.Elements[i].Ref)
		}

		if cur.LoChild != nil {
			workStack = append(workStack, cur.LoChild)
		}
		if cur.HiChild != nil {
			workStack = append(workStack, cur.HiChild)
		}
	}
}
