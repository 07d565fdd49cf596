// pkg/xtree/split.go
//
// split implements the R*-tree optimum-split algorithm with the X-tree
// supernode escape hatch (§4.7 "split(node)"): produce two rectangles
// with small overlap and small margin/area, or defer the split entirely
// by promoting the node to a supernode when every distribution overlaps
// too much.
package xtree

import (
	"math"
	"sort"

	"xtreedb/pkg/mbr"
)

// MaxOverlap is the percent-overlap ceiling below which a split commits
// immediately (§4.7 step 3, default 0.20).
const MaxOverlap = 0.20

// minSplitFraction (the 0.4 in m = ceil(0.4 * (M/2))) bounds how skewed a
// distribution's two sides may be.
const minSplitFraction = 0.4

func minGroupSize(maxFanout int) int {
	m := int(math.Ceil(minSplitFraction * float64(maxFanout) / 2))
	if m < 1 {
		m = 1
	}
	return m
}

// distribution is one candidate (left, right) grouping of a node's
// children along some axis and some sort order.
type distribution struct {
	leftIdx  []int
	rightIdx []int
	overlap  float64
	area     float64
	margin   float64
}

// splitResult carries the two groups chosen by splitBucket, as Child
// index partitions into the original bucket's Children slice.
type splitResult struct {
	left  []int
	right []int
}

// chooseSplit runs the R*-tree axis/distribution search over b's children
// and returns the winning distribution, or ok=false if b has too few
// children to split meaningfully.
func chooseSplit(b *Bucket, maxFanout int) (splitResult, bool) {
	n := len(b.Children)
	m := minGroupSize(maxFanout)
	if n < 2*m {
		return splitResult{}, false
	}

	dim := b.Bounds.Dim()
	var bestAxisDist *distribution
	bestAxisMarginSum := math.Inf(1)

	for axis := 0; axis < dim; axis++ {
		distsByMin := enumerateDistributions(b, axis, m, n, sortByMin)
		distsByMax := enumerateDistributions(b, axis, m, n, sortByMax)

		marginSum := 0.0
		for _, d := range distsByMin {
			marginSum += d.margin
		}
		for _, d := range distsByMax {
			marginSum += d.margin
		}

		best := bestOf(distsByMin, distsByMax)
		if marginSum < bestAxisMarginSum {
			bestAxisMarginSum = marginSum
			bestAxisDist = best
		}
	}

	if bestAxisDist == nil {
		return splitResult{}, false
	}
	return splitResult{left: bestAxisDist.leftIdx, right: bestAxisDist.rightIdx}, true
}

func bestOf(a, b []distribution) *distribution {
	all := append(append([]distribution{}, a...), b...)
	best := &all[0]
	for i := range all[1:] {
		d := &all[i+1]
		if d.overlap < best.overlap || (d.overlap == best.overlap && d.area < best.area) {
			best = d
		}
	}
	return best
}

type sortOrder int

const (
	sortByMin sortOrder = iota
	sortByMax
)

// enumerateDistributions sorts children by the given axis/bound order,
// then enumerates the n-2m+1 left/right splits of sizes m..n-m.
func enumerateDistributions(b *Bucket, axis, m, n int, order sortOrder) []distribution {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, c := b.Children[idx[i]].Bounds, b.Children[idx[j]].Bounds
		if order == sortByMin {
			return a.Min[axis] < c.Min[axis]
		}
		return a.Max[axis] < c.Max[axis]
	})

	var out []distribution
	for size := m; size <= n-m; size++ {
		left := idx[:size]
		right := idx[size:]
		leftMBR := unionOf(b, left)
		rightMBR := unionOf(b, right)

		out = append(out, distribution{
			leftIdx:  append([]int{}, left...),
			rightIdx: append([]int{}, right...),
			overlap:  leftMBR.OverlapArea(rightMBR),
			area:     leftMBR.Area() + rightMBR.Area(),
			margin:   leftMBR.Margin() + rightMBR.Margin(),
		})
	}
	return out
}

func unionOf(b *Bucket, idxs []int) mbr.Key {
	out := mbr.Empty(b.Bounds.Dim())
	for _, i := range idxs {
		out, _ = out.ExpandMBR(b.Children[i].Bounds)
	}
	return out
}

// percentOverlap returns the best distribution's percent overlap, for the
// supernode-escape decision in §4.7 step 3/4.
func percentOverlap(b *Bucket, r splitResult) float64 {
	left := unionOf(b, r.left)
	right := unionOf(b, r.right)
	return left.PercentOverlap(right)
}

// materialize builds the two resulting buckets from a chosen split,
// leaving the caller to assign NodeIDs and write them back through the
// store.
func materialize(b *Bucket, r splitResult, dim int) (leftBucket, rightBucket *Bucket) {
	left := &Bucket{IsLeaf: b.IsLeaf, Bounds: mbr.Empty(dim), Parent: b.Parent, Version: b.Version + 1}
	right := &Bucket{IsLeaf: b.IsLeaf, Bounds: mbr.Empty(dim), Parent: b.Parent, Version: 1}

	for _, i := range r.left {
		left.AppendChild(b.Children[i])
	}
	for _, i := range r.right {
		right.AppendChild(b.Children[i])
	}
	return left, right
}
