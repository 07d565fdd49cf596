// pkg/xtree/bucket.go
package xtree

import (
	"xtreedb/pkg/mbr"
	"xtreedb/pkg/nodestore"
)

// Child is one entry in a bucket's child array: either a reference to
// another bucket (interior levels, and the level directly above leaves)
// or to a data record (leaf buckets), distinguished by IsLeaf (§3 "Node
// (bucket)").
type Child struct {
	ID     nodestore.NodeID
	Bounds mbr.Key
	IsLeaf bool
}

// Bucket is the decoded, mutable in-memory form of one node. Buckets are
// owned exclusively by the node cache; callers obtain one via the cache's
// Get/Add and never hold a reference past an Unpin.
type Bucket struct {
	ID          nodestore.NodeID
	IsLeaf      bool
	IsSupernode bool
	Bounds      mbr.Key
	Children    []Child
	Parent      nodestore.NodeID // back-reference for local relinking only, not ownership
	Version     uint64
}

// NewLeafBucket creates an empty leaf bucket for a d-dimensional tree.
func NewLeafBucket(dim int) *Bucket {
	return &Bucket{IsLeaf: true, Bounds: mbr.Empty(dim), Version: 1}
}

// NewInteriorBucket creates an empty interior bucket for a d-dimensional
// tree.
func NewInteriorBucket(dim int) *Bucket {
	return &Bucket{IsLeaf: false, Bounds: mbr.Empty(dim), Version: 1}
}

// Clone returns a mutable deep copy of b, for copy-on-modify use: the
// caller mutates the clone and reallocates/writes it back through the
// store rather than mutating a cached bucket shared with concurrent
// readers.
func (b *Bucket) Clone() *Bucket {
	children := make([]Child, len(b.Children))
	copy(children, b.Children)
	return &Bucket{
		ID:          b.ID,
		IsLeaf:      b.IsLeaf,
		IsSupernode: b.IsSupernode,
		Bounds:      b.Bounds.Clone(),
		Children:    children,
		Parent:      b.Parent,
		Version:     b.Version + 1,
	}
}

// N returns the number of children currently in use.
func (b *Bucket) N() int { return len(b.Children) }

// RecomputeBounds restores invariant 2 (§3): a node's MBR equals the union
// of its children's MBRs.
func (b *Bucket) RecomputeBounds(dim int) {
	bounds := mbr.Empty(dim)
	for _, c := range b.Children {
		bounds, _ = bounds.ExpandMBR(c.Bounds)
	}
	b.Bounds = bounds
}

// AppendChild adds child to the end of b's child array and expands b's
// bounds to cover it.
func (b *Bucket) AppendChild(c Child) {
	b.Children = append(b.Children, c)
	b.Bounds, _ = b.Bounds.ExpandMBR(c.Bounds)
}

// ReplaceChild updates the bounds of the child referencing id (used after
// a descendant's bounds changed) and returns whether b's own bounds grew
// as a result.
func (b *Bucket) ReplaceChild(id nodestore.NodeID, bounds mbr.Key) bool {
	for i := range b.Children {
		if b.Children[i].ID == id {
			b.Children[i].Bounds = bounds
			newBounds, grew := b.Bounds.ExpandMBR(bounds)
			if grew {
				b.Bounds = newBounds
			}
			return grew
		}
	}
	return false
}

// childBounds returns the MBRs of every child, used by the R*-tree
// distribution search and overlap-enlargement ranking.
func (b *Bucket) childBounds() []mbr.Key {
	out := make([]mbr.Key, len(b.Children))
	for i, c := range b.Children {
		out[i] = c.Bounds
	}
	return out
}
