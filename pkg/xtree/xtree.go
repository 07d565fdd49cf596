// pkg/xtree/xtree.go
//
// Package xtree implements the X-tree bucket: R*-tree-style insertion
// (§4.7) with the X-tree supernode extension, and the paged query
// iterator (§4.8). It owns no storage itself — every bucket is read
// through the node cache, which in turn is backed by the durable node
// store and arena; data records are read from the node store directly and
// are not cached.
package xtree

import (
	"errors"
	"fmt"
	"sync"

	"xtreedb/pkg/cache"
	"xtreedb/pkg/mbr"
	"xtreedb/pkg/nodestore"
)

// ErrEmptyTree is returned by operations that require at least one
// inserted record when the tree is empty.
var ErrEmptyTree = errors.New("xtree: tree is empty")

// Config bounds the tree's fanout (§3 "Tree invariants" 3, §4.7).
type Config struct {
	// Dim is the number of dimensions every key in this tree has.
	Dim int
	// MaxFanout (M) bounds a non-supernode bucket's child count. Default 231.
	MaxFanout int
	// MaxSupernodeFanout (M_max) bounds a supernode's child count,
	// defaulting to 3*MaxFanout.
	MaxSupernodeFanout int
	// Precision is the number of bits an encoded MBR bound is truncated
	// to on the wire (§3 "⌈p/8⌉*8 bits"). Default 32.
	Precision int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxFanout <= 0 {
		out.MaxFanout = 231
	}
	if out.MaxSupernodeFanout <= 0 {
		out.MaxSupernodeFanout = 3 * out.MaxFanout
	}
	if out.Precision <= 0 {
		out.Precision = 32
	}
	return out
}

// Store is the subset of *nodestore.Store the tree needs, named here so
// tests can substitute a fake.
type Store interface {
	AllocateNode(size int, kind nodestore.Kind) (nodestore.NodeID, []byte, error)
	Reallocate(id nodestore.NodeID, newSize int) ([]byte, error)
	Bytes(id nodestore.NodeID) ([]byte, error)
	GetNodeKind(id nodestore.NodeID) (nodestore.Kind, error)
	SetRoot(id nodestore.NodeID, version uint64) error
	Root() (nodestore.NodeID, uint64)
}

// Tree is the X-tree bucket layer. Writers are serialized through writeMu
// (§5); reads (iterators) proceed concurrently against a stable root
// handle obtained under a brief read lock.
type Tree struct {
	cfg   Config
	store Store
	cache *cache.Cache

	writeMu     sync.Mutex
	rootMu      sync.RWMutex
	rootID      nodestore.NodeID
	rootVersion uint64
}

// New creates an empty Tree: a single empty leaf bucket becomes the root.
func New(cfg Config, store Store, nodeCache *cache.Cache) (*Tree, error) {
	c := cfg.withDefaults()
	t := &Tree{cfg: c, store: store, cache: nodeCache}

	root := NewLeafBucket(c.Dim)
	if err := t.writeBucket(root); err != nil {
		return nil, fmt.Errorf("xtree: creating root: %w", err)
	}
	if err := t.publishRoot(root.ID, 1); err != nil {
		return nil, err
	}
	return t, nil
}

// Open reconstructs a Tree over a store that already has a published root
// (used by the façade's Mmap/Durable recovery path).
func Open(cfg Config, store Store, nodeCache *cache.Cache) (*Tree, error) {
	c := cfg.withDefaults()
	rootID, version := store.Root()
	if rootID == nodestore.NilNodeID {
		return New(cfg, store, nodeCache)
	}
	return &Tree{cfg: c, store: store, cache: nodeCache, rootID: rootID, rootVersion: version}, nil
}

// RootID returns the currently published root's identity.
func (t *Tree) RootID() nodestore.NodeID {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.rootID
}

func (t *Tree) publishRoot(id nodestore.NodeID, version uint64) error {
	if err := t.store.SetRoot(id, version); err != nil {
		return fmt.Errorf("xtree: publishing root: %w", err)
	}
	t.rootMu.Lock()
	t.rootID = id
	t.rootVersion = version
	t.rootMu.Unlock()
	return nil
}

// loadBucket resolves id to a decoded Bucket, consulting the cache first.
func (t *Tree) loadBucket(id nodestore.NodeID) (*Bucket, error) {
	if v, ok := t.cache.Get(id); ok {
		return v.(*Bucket), nil
	}

	raw, err := t.store.Bytes(id)
	if err != nil {
		return nil, fmt.Errorf("xtree: loading bucket %d: %w", id, err)
	}
	wire, err := nodestore.DecodeBucketWire(raw, t.cfg.Dim, t.cfg.Precision)
	if err != nil {
		return nil, fmt.Errorf("xtree: decoding bucket %d: %w", id, err)
	}

	b := &Bucket{ID: id, IsLeaf: wire.IsLeaf, IsSupernode: wire.IsSupernode, Bounds: wire.Bounds}
	b.Children = make([]Child, len(wire.Children))
	for i, c := range wire.Children {
		b.Children[i] = Child{ID: c.Child, Bounds: c.Bounds, IsLeaf: c.IsLeaf}
	}

	t.cache.Add(id, b, int64(len(raw)))
	return b, nil
}

// writeBucket encodes b, allocating a fresh NodeID if b has none, and
// updates the cache with the written copy.
func (t *Tree) writeBucket(b *Bucket) error {
	wire := &nodestore.BucketWire{IsLeaf: b.IsLeaf, IsSupernode: b.IsSupernode, Bounds: b.Bounds}
	wire.Children = make([]nodestore.ChildEntry, len(b.Children))
	for i, c := range b.Children {
		wire.Children[i] = nodestore.ChildEntry{Child: c.ID, Bounds: c.Bounds, IsLeaf: c.IsLeaf}
	}
	encoded := wire.Encode(t.cfg.Dim, t.cfg.Precision)

	if b.ID == nodestore.NilNodeID {
		kind := nodestore.KindInterior
		if b.IsLeaf {
			kind = nodestore.KindLeaf
		}
		id, buf, err := t.store.AllocateNode(len(encoded), kind)
		if err != nil {
			return err
		}
		copy(buf, encoded)
		b.ID = id
	} else {
		buf, err := t.store.Reallocate(b.ID, len(encoded))
		if err != nil {
			return err
		}
		copy(buf, encoded)
	}

	t.cache.Add(b.ID, b, int64(len(encoded)))
	return nil
}

// writeRecord encodes a DataRecord as a fresh node-store record and returns
// its identity.
func (t *Tree) writeRecord(rec DataRecord) (nodestore.NodeID, error) {
	wire := &nodestore.RecordWire{Bounds: rec.Bounds, RowID: rec.RowID, Points: rec.Points}
	encoded := wire.Encode(t.cfg.Dim, t.cfg.Precision)
	id, buf, err := t.store.AllocateNode(len(encoded), nodestore.KindRecord)
	if err != nil {
		return nodestore.NilNodeID, err
	}
	copy(buf, encoded)
	return id, nil
}

// Insert adds rec to the tree (§4.7 "Insert").
func (t *Tree) Insert(rec DataRecord) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	recID, err := t.writeRecord(rec)
	if err != nil {
		return fmt.Errorf("xtree: writing record: %w", err)
	}

	path, err := t.findInsertPath(rec.Bounds)
	if err != nil {
		return err
	}

	leaf := path[len(path)-1]
	leaf.AppendChild(Child{ID: recID, Bounds: rec.Bounds, IsLeaf: true})

	mustSplit := t.overCapacity(leaf)
	if err := t.writeBucket(leaf); err != nil {
		return err
	}

	return t.propagateUpward(path, mustSplit)
}

// findInsertPath walks from the root to the target leaf via chooseSubtree,
// returning every bucket visited (root first, leaf last).
func (t *Tree) findInsertPath(key mbr.Key) ([]*Bucket, error) {
	rootID := t.RootID()
	root, err := t.loadBucket(rootID)
	if err != nil {
		return nil, err
	}

	path := []*Bucket{root}
	node := root
	for !node.IsLeaf {
		idx := chooseSubtree(node, key, childIsLeafLevel(node, t))
		if idx < 0 {
			return nil, fmt.Errorf("xtree: bucket %d has no children to descend into", node.ID)
		}
		childID := node.Children[idx].ID
		child, err := t.loadBucket(childID)
		if err != nil {
			return nil, err
		}
		path = append(path, child)
		node = child
	}
	return path, nil
}

// childIsLeafLevel reports whether node's children are leaf buckets (as
// opposed to further interior buckets), which chooseSubtree needs to pick
// its ranking branch.
func childIsLeafLevel(node *Bucket, t *Tree) bool {
	if len(node.Children) == 0 {
		return true
	}
	kind, err := t.store.GetNodeKind(node.Children[0].ID)
	if err != nil {
		return true
	}
	return kind == nodestore.KindLeaf
}

func (t *Tree) overCapacity(b *Bucket) bool {
	limit := t.cfg.MaxFanout
	if b.IsSupernode {
		limit = t.cfg.MaxSupernodeFanout
	}
	return b.N() > limit
}

// propagateUpward walks the insert path from leaf to root, enlarging
// bounds and performing splits as needed (§4.7 step 3).
func (t *Tree) propagateUpward(path []*Bucket, leafMustSplit bool) error {
	mustSplit := leafMustSplit

	for level := len(path) - 1; level >= 0; level-- {
		node := path[level]

		if mustSplit {
			left, right, didSplit, err := t.splitOrSupernode(node)
			if err != nil {
				return err
			}
			if !didSplit {
				mustSplit = false
			} else {
				if level == 0 {
					return t.splitRoot(left, right)
				}
				parent := path[level-1]
				parent.ReplaceChild(node.ID, left.Bounds)
				parent.AppendChild(Child{ID: right.ID, Bounds: right.Bounds, IsLeaf: false})
				mustSplit = t.overCapacity(parent)
				if err := t.writeBucket(parent); err != nil {
					return err
				}
				continue
			}
		}

		if level > 0 {
			parent := path[level-1]
			if grew := parent.ReplaceChild(node.ID, node.Bounds); grew {
				if err := t.writeBucket(parent); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// splitOrSupernode runs chooseSplit/commits it, or promotes node to a
// supernode instead (§4.7 steps 3-5).
func (t *Tree) splitOrSupernode(node *Bucket) (left, right *Bucket, didSplit bool, err error) {
	dist, ok := chooseSplit(node, t.cfg.MaxFanout)
	if !ok {
		return nil, nil, false, nil
	}

	overlap := percentOverlap(node, dist)
	atHardCap := node.N() >= t.cfg.MaxSupernodeFanout

	if overlap >= MaxOverlap && !atHardCap {
		node.IsSupernode = true
		if err := t.writeBucket(node); err != nil {
			return nil, nil, false, err
		}
		return nil, nil, false, nil
	}

	left, right = materialize(node, dist, t.cfg.Dim)
	left.ID = node.ID // left reuses the original identity; right is fresh
	if err := t.writeBucket(left); err != nil {
		return nil, nil, false, err
	}
	if err := t.writeBucket(right); err != nil {
		return nil, nil, false, err
	}
	return left, right, true, nil
}

// splitRoot allocates a new root parenting left and right, and publishes it
// atomically before returning (§4.7 "Root split"). The new root's version
// is strictly greater than the predecessor's (§3 invariant 6).
func (t *Tree) splitRoot(left, right *Bucket) error {
	newRoot := NewInteriorBucket(t.cfg.Dim)
	newRoot.AppendChild(Child{ID: left.ID, Bounds: left.Bounds, IsLeaf: false})
	newRoot.AppendChild(Child{ID: right.ID, Bounds: right.Bounds, IsLeaf: false})

	if err := t.writeBucket(newRoot); err != nil {
		return err
	}

	return t.publishRoot(newRoot.ID, t.currentRootVersion()+1)
}

func (t *Tree) currentRootVersion() uint64 {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.rootVersion
}
