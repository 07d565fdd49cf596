// pkg/xtree/iterator.go
//
// Iterator implements the paged query traversal described in §4.8: a lazy
// sequence of data records matching a query MBR under Intersects or
// Contains semantics, filled in batches of up to ITER_PAGE_SIZE.
package xtree

import (
	"fmt"

	"xtreedb/pkg/mbr"
	"xtreedb/pkg/nodestore"
)

// Mode selects the query predicate.
type Mode int

const (
	// Intersects emits every record whose MBR intersects the query MBR.
	Intersects Mode = iota
	// Contains emits every record whose MBR is fully inside the query MBR.
	Contains
)

// Order selects the traversal discipline for the work list.
type Order int

const (
	// DFS is the default: a stack-based depth-first walk, kinder to cache
	// locality (§4.8).
	DFS Order = iota
	// BFS is a queue-based breadth-first walk.
	BFS
)

// DefaultPageSize is ITER_PAGE_SIZE from §4.8.
const DefaultPageSize = 400

// workItem is one pending node on the iterator's traversal work list.
type workItem struct {
	id             nodestore.NodeID
	fullyContained bool // true once an ancestor was found fully inside the query MBR
}

// Iterator walks the tree and streams matching data records.
type Iterator struct {
	tree     *Tree
	query    mbr.Key
	mode     Mode
	order    Order
	pageSize int

	work   []workItem // stack (DFS) or queue (BFS)
	pinned map[nodestore.NodeID]struct{}
	done   bool
}

// NewIterator creates an iterator rooted at the tree's current root.
func NewIterator(t *Tree, query mbr.Key, mode Mode, order Order) (*Iterator, error) {
	it := &Iterator{
		tree:     t,
		query:    query,
		mode:     mode,
		order:    order,
		pageSize: DefaultPageSize,
		pinned:   make(map[nodestore.NodeID]struct{}),
	}

	rootID := t.RootID()
	if rootID == nodestore.NilNodeID {
		it.done = true
		return it, nil
	}
	it.push(workItem{id: rootID})
	return it, nil
}

func (it *Iterator) push(w workItem) {
	it.work = append(it.work, w)
}

// pin marks id as held by this iterator and, once it is cached, protects
// it from eviction for the rest of the iterator's lifetime. Safe to call
// more than once for the same id.
func (it *Iterator) pin(id nodestore.NodeID) {
	if _, ok := it.pinned[id]; ok {
		return
	}
	it.tree.cache.Pin(id)
	it.pinned[id] = struct{}{}
}

// pop removes and returns the next item per the configured traversal
// order: LIFO for DFS, FIFO for BFS.
func (it *Iterator) pop() (workItem, bool) {
	if len(it.work) == 0 {
		return workItem{}, false
	}
	if it.order == DFS {
		w := it.work[len(it.work)-1]
		it.work = it.work[:len(it.work)-1]
		return w, true
	}
	w := it.work[0]
	it.work = it.work[1:]
	return w, true
}

// Next fills and returns up to pageSize matching records. An empty,
// non-nil slice with ok=true is a valid intermediate page only when more
// remain; ok=false means the iterator is exhausted and has been closed.
func (it *Iterator) Next() ([]DataRecord, bool, error) {
	if it.done {
		it.Close()
		return nil, false, nil
	}

	var out []DataRecord
	for len(out) < it.pageSize {
		w, ok := it.pop()
		if !ok {
			it.done = true
			break
		}

		bucket, err := it.tree.loadBucket(w.id)
		if err != nil {
			it.Close()
			return nil, false, fmt.Errorf("xtree: iterator: %w", err)
		}
		it.pin(w.id)

		fullyContained := w.fullyContained || it.query.Contains(bucket.Bounds)

		if bucket.IsLeaf {
			recs, err := it.scanLeaf(bucket, fullyContained)
			if err != nil {
				it.Close()
				return nil, false, err
			}
			out = append(out, recs...)
			continue
		}

		for _, c := range bucket.Children {
			if fullyContained || it.admits(c.Bounds) {
				it.push(workItem{id: c.ID, fullyContained: fullyContained})
			}
		}
	}

	if it.done && len(it.work) == 0 {
		it.Close()
	}
	return out, !it.done || len(out) > 0, nil
}

// admits reports whether a child's MBR could contain a matching record
// under the configured mode, without yet decoding the child. Intersects is
// the correct pruning test for both modes: a Contains match still requires
// the child's subtree to at least overlap the query MBR.
func (it *Iterator) admits(childBounds mbr.Key) bool {
	return it.query.Intersects(childBounds)
}

func (it *Iterator) scanLeaf(bucket *Bucket, fullyContained bool) ([]DataRecord, error) {
	var out []DataRecord
	for _, c := range bucket.Children {
		if !fullyContained {
			if it.mode == Contains && !it.query.Contains(c.Bounds) {
				continue
			}
			if it.mode == Intersects && !it.query.Intersects(c.Bounds) {
				continue
			}
		} else if it.mode == Intersects && !it.query.Intersects(c.Bounds) {
			continue
		}

		raw, err := it.tree.store.Bytes(c.ID)
		if err != nil {
			return nil, fmt.Errorf("xtree: reading record %d: %w", c.ID, err)
		}
		wire, err := nodestore.DecodeRecordWire(raw, it.tree.cfg.Dim, it.tree.cfg.Precision)
		if err != nil {
			return nil, fmt.Errorf("xtree: decoding record %d: %w", c.ID, err)
		}
		out = append(out, DataRecord{RowID: wire.RowID, Points: wire.Points, Bounds: wire.Bounds})
	}
	return out, nil
}

// Close releases every node this iterator has pinned. Safe to call more
// than once.
func (it *Iterator) Close() {
	for id := range it.pinned {
		it.tree.cache.Unpin(id)
	}
	it.pinned = make(map[nodestore.NodeID]struct{})
	it.work = nil
	it.done = true
}
