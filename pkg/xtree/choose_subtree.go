// pkg/xtree/choose_subtree.go
//
// chooseSubtree implements the R*-tree child-selection heuristic described
// in §4.7: minimize overlap of subtree MBRs and, secondarily, area
// enlargement.
package xtree

import (
	"sort"

	"xtreedb/pkg/mbr"
)

// leafFanoutCutover (P in §4.7) bounds how many candidates the
// overlap-enlargement ranking considers when a parent of leaves has more
// than this many children; above it, only the top P by area enlargement
// are ranked by overlap to keep the search linear in fanout.
const leafFanoutCutover = 132

// chooseSubtree picks the index of the child in parent.Children that key
// should descend into.
func chooseSubtree(parent *Bucket, key mbr.Key, childrenAreLeaves bool) int {
	n := len(parent.Children)
	if n == 0 {
		return -1
	}

	if !childrenAreLeaves {
		return minAreaEnlargement(parent, key)
	}

	if n > leafFanoutCutover {
		return chooseSubtreeLargeFanout(parent, key)
	}
	return chooseSubtreeSmallFanout(parent, key)
}

// minAreaEnlargement picks the child with minimum area enlargement to
// admit key, used once the parent's children are themselves interior
// nodes.
func minAreaEnlargement(parent *Bucket, key mbr.Key) int {
	best := -1
	bestEnl := 0.0
	for i, c := range parent.Children {
		enl := c.Bounds.AreaEnlargement(key)
		if best == -1 || enl < bestEnl {
			best = i
			bestEnl = enl
		}
	}
	return best
}

// chooseSubtreeSmallFanout implements the parent.n <= P branch: sort all
// children by area enlargement, then among ties on minimum area pick
// minimum overlap enlargement.
func chooseSubtreeSmallFanout(parent *Bucket, key mbr.Key) int {
	type candidate struct {
		idx int
		enl float64
	}
	cands := make([]candidate, len(parent.Children))
	for i, c := range parent.Children {
		cands[i] = candidate{idx: i, enl: c.Bounds.AreaEnlargement(key)}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].enl < cands[j].enl })

	if cands[0].enl == 0 {
		for _, c := range cands {
			if c.enl == 0 && parent.Children[c.idx].Bounds.Contains(key) {
				return c.idx
			}
		}
	}

	minEnl := cands[0].enl
	tied := make([]int, 0, 1)
	for _, c := range cands {
		if c.enl == minEnl {
			tied = append(tied, c.idx)
		} else {
			break
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}

	siblings := parent.childBounds()
	best := tied[0]
	bestOverlap := overlapEnlargementFor(parent, best, key, siblings)
	for _, idx := range tied[1:] {
		o := overlapEnlargementFor(parent, idx, key, siblings)
		if o < bestOverlap {
			best = idx
			bestOverlap = o
		}
	}
	return best
}

// chooseSubtreeLargeFanout implements the parent.n > P branch: rank by
// area enlargement, keep the top P, then pick minimum overlap enlargement
// among those.
func chooseSubtreeLargeFanout(parent *Bucket, key mbr.Key) int {
	type candidate struct {
		idx int
		enl float64
	}
	cands := make([]candidate, len(parent.Children))
	for i, c := range parent.Children {
		cands[i] = candidate{idx: i, enl: c.Bounds.AreaEnlargement(key)}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].enl < cands[j].enl })

	if cands[0].enl == 0 {
		for _, c := range cands {
			if c.enl == 0 && parent.Children[c.idx].Bounds.Contains(key) {
				return c.idx
			}
		}
	}

	top := cands
	if len(top) > leafFanoutCutover {
		top = top[:leafFanoutCutover]
	}

	siblings := parent.childBounds()
	best := top[0].idx
	bestOverlap := overlapEnlargementFor(parent, best, key, siblings)
	for _, c := range top[1:] {
		o := overlapEnlargementFor(parent, c.idx, key, siblings)
		if o < bestOverlap {
			best = c.idx
			bestOverlap = o
		}
	}
	return best
}

// overlapEnlargementFor computes how much candidate index idx's overlap
// with every other sibling would grow if its bounds were expanded to
// cover key.
func overlapEnlargementFor(parent *Bucket, idx int, key mbr.Key, siblings []mbr.Key) float64 {
	others := make([]mbr.Key, 0, len(siblings)-1)
	for i, s := range siblings {
		if i != idx {
			others = append(others, s)
		}
	}
	return parent.Children[idx].Bounds.OverlapEnlargementAgainst(key, others)
}
