// pkg/nodestore/nodestore.go
//
// Package nodestore implements the durable node store (§4.4): it maps
// stable NodeIDs to on-disk records, preserves identity across
// reallocation when a node's encoded size outgrows its current size
// class, and provides an atomic root pointer with a monotonic commit
// epoch.
package nodestore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"xtreedb/pkg/arena"
)

// ErrUnknownNode is returned by GetNodeKind for an ID that was never
// allocated (or has been invalidated) in this store.
var ErrUnknownNode = errors.New("nodestore: unknown node id")

// Store owns the NodeID identity table over an Arena.
type Store struct {
	arena *arena.Arena

	mu      sync.RWMutex
	nextID  uint64
	records map[NodeID]record

	rootID      NodeID
	rootVersion uint64
	epoch       int64 // atomic commit epoch
}

// New creates a Store backed by a.
func New(a *arena.Arena) *Store {
	return &Store{arena: a, records: make(map[NodeID]record), nextID: 1}
}

// AllocateNode assigns a fresh NodeID and a writable region of at least
// size bytes (rounded up to its size class), returning the ID and the
// writable slice.
func (s *Store) AllocateNode(size int, kind Kind) (NodeID, []byte, error) {
	class := SizeClassFor(size)
	off, err := s.arena.Allocate(int64(class))
	if err != nil {
		return NilNodeID, nil, fmt.Errorf("nodestore: allocating node: %w", err)
	}

	s.mu.Lock()
	id := NodeID(s.nextID)
	s.nextID++
	s.records[id] = record{offset: off, sizeClass: class, kind: kind}
	s.mu.Unlock()

	return id, s.arena.Resolve(off, class), nil
}

// Reallocate preserves id's identity while moving its underlying record to
// a slot large enough for newSize bytes. The old slot is abandoned: the
// arena never frees individual allocations, so its bytes stay allocated
// and are carried into every later snapshot.
func (s *Store) Reallocate(id NodeID, newSize int) ([]byte, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("nodestore: reallocating %d: %w", id, ErrUnknownNode)
	}
	s.mu.Unlock()

	class := SizeClassFor(newSize)
	if class == rec.sizeClass {
		return s.arena.Resolve(rec.offset, class), nil
	}

	off, err := s.arena.Allocate(int64(class))
	if err != nil {
		return nil, fmt.Errorf("nodestore: reallocating node %d: %w", id, err)
	}

	old := s.arena.Resolve(rec.offset, rec.sizeClass)
	newBuf := s.arena.Resolve(off, class)
	copy(newBuf, old)

	s.mu.Lock()
	s.records[id] = record{offset: off, sizeClass: class, kind: rec.kind}
	s.mu.Unlock()

	return newBuf, nil
}

// Bytes returns the current physical slice backing id, without copying.
func (s *Store) Bytes(id NodeID) ([]byte, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("nodestore: reading %d: %w", id, ErrUnknownNode)
	}
	return s.arena.Resolve(rec.offset, rec.sizeClass), nil
}

// GetNodeKind validates that id is live and reports its kind.
func (s *Store) GetNodeKind(id NodeID) (Kind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return 0, ErrUnknownNode
	}
	return rec.kind, nil
}

// SetRoot publishes a new root, advancing the monotonic version counter.
// version must be strictly greater than the previously published version;
// callers (the façade) are responsible for generating it.
func (s *Store) SetRoot(id NodeID, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version <= s.rootVersion && s.rootVersion != 0 {
		return fmt.Errorf("nodestore: root version %d is not strictly greater than current %d", version, s.rootVersion)
	}
	s.rootID = id
	s.rootVersion = version
	return nil
}

// Root returns the currently published root ID and its version.
func (s *Store) Root() (NodeID, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rootID, s.rootVersion
}

// Commit durably flushes all outstanding node writes by syncing the arena,
// then advances the commit epoch observers use to detect external commits.
func (s *Store) Commit() (int64, error) {
	if err := s.arena.Sync(); err != nil {
		return 0, fmt.Errorf("nodestore: commit: %w", err)
	}
	return atomic.AddInt64(&s.epoch, 1), nil
}

// Epoch returns the most recently committed epoch.
func (s *Store) Epoch() int64 {
	return atomic.LoadInt64(&s.epoch)
}

// Recover resets the identity table and republishes the root prior to the
// caller walking the persisted tree and calling AssignRecovered for every
// node it finds. The arena itself is recovered wholesale from a snapshot
// (§4.2); nodestore's job is narrower than a page-store WAL replay since it
// only has to re-derive NodeID -> offset mappings, not replay writes.
// Tree-shape decoding lives in the xtree package, not here.
func (s *Store) Recover(rootID NodeID, rootVersion uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootID = rootID
	s.rootVersion = rootVersion
	s.records = make(map[NodeID]record)
	s.nextID = uint64(rootID) + 1
}

// AssignRecovered installs one identity-table entry during recovery.
func (s *Store) AssignRecovered(id NodeID, off arena.Offset, sizeClass int, kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = record{offset: off, sizeClass: sizeClass, kind: kind}
	if uint64(id) >= s.nextID {
		s.nextID = uint64(id) + 1
	}
}
