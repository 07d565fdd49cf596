// pkg/cache/cache.go
//
// Package cache implements the node cache (§4.5): a bounded NodeID ->
// decoded-node mapping with an LRU eviction chain and a pin/unpin
// reference count. A pinned entry can never be evicted; iterators pin
// every bucket they have visited and unpin them when the iterator is
// closed or exhausted. Buckets still waiting on an iterator's work list
// are not pinned.
package cache

import (
	"container/list"
	"sync"

	"xtreedb/pkg/nodestore"
)

// entry is the value stored in the LRU list for one cached node.
type entry struct {
	id     nodestore.NodeID
	value  any
	size   int64
	pinned int
}

// Cache is a bounded NodeID -> decoded-node cache with LRU eviction and
// pinning. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	budget   *MemoryBudget
	order    *list.List // front = most recently used
	index    map[nodestore.NodeID]*list.Element
}

// New creates a Cache that holds at most capacity entries. If budget is
// non-nil, every Add/Invalidate also tracks/releases bytes against it under
// the "nodecache" component, and eviction runs past capacity whenever the
// budget reports itself exceeded.
func New(capacity int, budget *MemoryBudget) *Cache {
	if capacity <= 0 {
		capacity = 4096
	}
	if budget != nil {
		budget.RegisterComponent("nodecache")
	}
	return &Cache{
		capacity: capacity,
		budget:   budget,
		order:    list.New(),
		index:    make(map[nodestore.NodeID]*list.Element),
	}
}

// Get returns the decoded node for id and marks it most-recently-used, or
// reports ok=false on a miss.
func (c *Cache) Get(id nodestore.NodeID) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	if c.budget != nil {
		c.budget.RecordAccess("nodecache", idKey(id))
	}
	return el.Value.(*entry).value, true
}

// Add inserts or replaces the decoded node for id, sized at size bytes for
// memory-budget accounting. Eviction runs only over unpinned entries; if
// every entry is pinned the cache is allowed to grow past capacity rather
// than evict a node an iterator is actively walking.
func (c *Cache) Add(id nodestore.NodeID, value any, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[id]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.size = size
		c.order.MoveToFront(el)
		if c.budget != nil {
			c.budget.ReleaseItem("nodecache", idKey(id))
			c.budget.TrackWithPriority("nodecache", idKey(id), size, PriorityWarm)
		}
		return
	}

	e := &entry{id: id, value: value, size: size}
	el := c.order.PushFront(e)
	c.index[id] = el

	if c.budget != nil {
		c.budget.TrackWithPriority("nodecache", idKey(id), size, PriorityWarm)
	}

	c.evictLocked()
}

// evictLocked evicts least-recently-used unpinned entries until the cache
// is at or under capacity, and keeps going past capacity while the memory
// budget reports its tracked bytes exceeded (§4.5 "bound memory usage").
// Must be called with mu held.
func (c *Cache) evictLocked() {
	for c.order.Len() > c.capacity || (c.budget != nil && c.budget.IsExceeded()) {
		el := c.order.Back()
		evicted := false
		for el != nil {
			e := el.Value.(*entry)
			if e.pinned == 0 {
				c.order.Remove(el)
				delete(c.index, e.id)
				if c.budget != nil {
					c.budget.ReleaseItem("nodecache", idKey(e.id))
				}
				evicted = true
				break
			}
			el = el.Prev()
		}
		if !evicted {
			return
		}
	}
}

// Pin increments id's pin count, protecting it from eviction. Pin is a
// no-op (does not error) if id is not currently cached; the caller is
// expected to Add it first.
func (c *Cache) Pin(id nodestore.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[id]; ok {
		el.Value.(*entry).pinned++
	}
}

// Unpin decrements id's pin count. Once the count returns to zero the
// entry becomes eligible for eviction again.
func (c *Cache) Unpin(id nodestore.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[id]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	if e.pinned > 0 {
		e.pinned--
	}
	c.evictLocked()
}

// Invalidate forces id out of the cache regardless of its LRU position,
// used after an external commit to force a reload on next access. A
// pinned entry is removed from the index but left for its pinning owner to
// release naturally; it will not be found by Get after this call.
func (c *Cache) Invalidate(id nodestore.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[id]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.index, id)
	if c.budget != nil {
		c.budget.ReleaseItem("nodecache", idKey(e.id))
	}
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func idKey(id nodestore.NodeID) string {
	var buf [20]byte
	n := len(buf)
	if id == 0 {
		return "0"
	}
	for id > 0 {
		n--
		buf[n] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[n:])
}
