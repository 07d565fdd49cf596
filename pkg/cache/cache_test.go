package cache

import "testing"

func TestAddAndGet(t *testing.T) {
	c := New(4, nil)
	c.Add(1, "node-one", 64)
	c.Add(2, "node-two", 64)

	v, ok := c.Get(1)
	if !ok || v != "node-one" {
		t.Fatalf("Get(1) = %v, %v", v, ok)
	}
	if _, ok := c.Get(999); ok {
		t.Fatalf("expected miss for uncached id")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, nil)
	c.Add(1, "a", 1)
	c.Add(2, "b", 1)
	c.Add(3, "c", 1) // evicts 1, the LRU entry

	if _, ok := c.Get(1); ok {
		t.Fatalf("expected id 1 to be evicted")
	}
	if _, ok := c.Get(2); !ok {
		t.Fatalf("expected id 2 to survive")
	}
	if _, ok := c.Get(3); !ok {
		t.Fatalf("expected id 3 to survive")
	}
}

func TestPinPreventsEviction(t *testing.T) {
	c := New(2, nil)
	c.Add(1, "a", 1)
	c.Pin(1)
	c.Add(2, "b", 1)
	c.Add(3, "c", 1)

	if _, ok := c.Get(1); !ok {
		t.Fatalf("pinned entry should not have been evicted")
	}
	if _, ok := c.Get(2); ok {
		t.Fatalf("expected unpinned entry 2 to be evicted in place of pinned entry 1")
	}

	c.Unpin(1)
	c.Get(3) // make 1 the least recently used entry again
	c.Add(4, "d", 1)
	if _, ok := c.Get(1); ok {
		t.Fatalf("entry 1 should now be evictable after Unpin")
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	c := New(4, nil)
	c.Add(1, "a", 1)
	c.Invalidate(1)
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected miss after Invalidate")
	}
}

func TestGetPromotesToMostRecentlyUsed(t *testing.T) {
	c := New(2, nil)
	c.Add(1, "a", 1)
	c.Add(2, "b", 1)
	c.Get(1) // promote 1, making 2 the LRU
	c.Add(3, "c", 1)

	if _, ok := c.Get(2); ok {
		t.Fatalf("expected id 2 to be evicted after promotion of 1")
	}
	if _, ok := c.Get(1); !ok {
		t.Fatalf("expected id 1 to survive")
	}
}

func TestAddWithMemoryBudgetTracksUsage(t *testing.T) {
	budget := NewMemoryBudget(1024)
	c := New(100, budget)
	c.Add(1, "a", 256)
	if budget.ComponentUsage("nodecache") != 256 {
		t.Fatalf("ComponentUsage = %d, want 256", budget.ComponentUsage("nodecache"))
	}
	c.Invalidate(1)
	if budget.ComponentUsage("nodecache") != 0 {
		t.Fatalf("ComponentUsage after invalidate = %d, want 0", budget.ComponentUsage("nodecache"))
	}
}
