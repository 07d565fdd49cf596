package xtree

import (
	"testing"

	"xtreedb/pkg/arena"
	"xtreedb/pkg/cache"
	"xtreedb/pkg/mbr"
	"xtreedb/pkg/nodestore"
)

func newTestTree(t *testing.T, cfg Config) *Tree {
	t.Helper()
	a, err := arena.New(arena.Options{Mode: arena.ModeMemory, GrowthHint: 4096})
	if err != nil {
		t.Fatalf("arena.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	store := nodestore.New(a)
	c := cache.New(4096, nil)

	tree, err := New(cfg, store, c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tree
}

func point(dim int, vals ...float64) mbr.Key {
	k := mbr.Empty(dim)
	k, _ = k.ExpandPoint(vals)
	return k
}

func record(id string, dim int, vals ...float64) DataRecord {
	return NewDataRecord([]byte(id), dim, [][]float64{vals})
}

func TestNewTreeHasEmptyLeafRoot(t *testing.T) {
	tree := newTestTree(t, Config{Dim: 2})
	root, err := tree.loadBucket(tree.RootID())
	if err != nil {
		t.Fatalf("loadBucket: %v", err)
	}
	if !root.IsLeaf || root.N() != 0 {
		t.Fatalf("expected empty leaf root, got %+v", root)
	}
}

func TestInsertSingleRecordUpdatesRootBounds(t *testing.T) {
	tree := newTestTree(t, Config{Dim: 2})
	rec := record("a", 2, 3, 4)
	if err := tree.Insert(rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	root, err := tree.loadBucket(tree.RootID())
	if err != nil {
		t.Fatalf("loadBucket: %v", err)
	}
	if root.N() != 1 {
		t.Fatalf("expected 1 child, got %d", root.N())
	}
	if root.Bounds.Min[0] != 3 || root.Bounds.Max[1] != 4 {
		t.Fatalf("unexpected root bounds: %+v", root.Bounds)
	}
}

func TestInsertManyRecordsTriggersSplit(t *testing.T) {
	tree := newTestTree(t, Config{Dim: 2, MaxFanout: 4})
	for i := 0; i < 40; i++ {
		x := float64(i)
		rec := record("r", 2, x, x)
		if err := tree.Insert(rec); err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
	}

	root, err := tree.loadBucket(tree.RootID())
	if err != nil {
		t.Fatalf("loadBucket: %v", err)
	}
	if root.IsLeaf {
		t.Fatalf("expected root to become interior after many inserts, still a leaf with %d children", root.N())
	}
	if tree.rootVersionForTest() < 2 {
		t.Fatalf("expected root version to advance past 1 after a split, got %d", tree.rootVersionForTest())
	}
}

func TestIteratorFindsInsertedRecord(t *testing.T) {
	tree := newTestTree(t, Config{Dim: 2, MaxFanout: 8})
	for i := 0; i < 20; i++ {
		x := float64(i)
		if err := tree.Insert(record("r", 2, x, x)); err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
	}

	query := mbr.Key{Min: []float64{4, 4}, Max: []float64{6, 6}}
	it, err := NewIterator(tree, query, Intersects, DFS)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}

	var found int
	for {
		page, more, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		found += len(page)
		if !more {
			break
		}
	}
	if found != 3 {
		t.Fatalf("expected 3 matching records (x in {4,5,6}), got %d", found)
	}
}

func TestIteratorUnpinsAllOnClose(t *testing.T) {
	tree := newTestTree(t, Config{Dim: 2, MaxFanout: 4})
	for i := 0; i < 30; i++ {
		x := float64(i)
		if err := tree.Insert(record("r", 2, x, x)); err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
	}

	query := mbr.Key{Min: []float64{0, 0}, Max: []float64{100, 100}}
	it, err := NewIterator(tree, query, Intersects, DFS)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	for {
		_, more, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !more {
			break
		}
	}
	if len(it.pinned) != 0 {
		t.Fatalf("expected no pinned nodes after exhausting iterator, got %d", len(it.pinned))
	}
}

func TestChooseSubtreePrefersZeroEnlargement(t *testing.T) {
	parent := NewInteriorBucket(2)
	parent.AppendChild(Child{ID: 1, Bounds: mbr.Key{Min: []float64{0, 0}, Max: []float64{10, 10}}})
	parent.AppendChild(Child{ID: 2, Bounds: mbr.Key{Min: []float64{20, 20}, Max: []float64{30, 30}}})

	idx := chooseSubtree(parent, point(2, 5, 5), false)
	if parent.Children[idx].ID != 1 {
		t.Fatalf("expected child 1 (already contains point), got child %d", parent.Children[idx].ID)
	}
}

// rootVersionForTest exposes the tree's internal root version for assertions
// without adding a public accessor only tests would use.
func (t *Tree) rootVersionForTest() uint64 {
	return t.currentRootVersion()
}
