// pkg/nodestore/identity.go
package nodestore

import "xtreedb/pkg/arena"

// NodeID is a stable node identity that survives reallocation to a new
// physical offset (§3 "Identity").
type NodeID uint64

// NilNodeID is reserved to mean "no node" (e.g. an unset child slot).
const NilNodeID NodeID = 0

// Kind distinguishes what a NodeID's physical record holds.
type Kind uint8

const (
	// KindInterior is an X-tree interior bucket.
	KindInterior Kind = iota
	// KindLeaf is an X-tree leaf bucket.
	KindLeaf
	// KindRecord is a data record.
	KindRecord
)

// record is the identity table's one entry per live NodeID: where its
// physical bytes currently live and what size class they occupy.
type record struct {
	offset    arena.Offset
	sizeClass int
	kind      Kind
}
