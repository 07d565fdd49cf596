// pkg/xtreedb/index.go
//
// Package xtreedb is the index façade (§4.9): the one package most callers
// import. It wires the arena, node store, node cache, snapshot manager and
// X-tree bucket layer together behind Create/Insert/Iterate/Commit/Close,
// and owns the root-handle discipline described in §4.9.
package xtreedb

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"xtreedb/pkg/arena"
	"xtreedb/pkg/cache"
	"xtreedb/pkg/mbr"
	"xtreedb/pkg/nodestore"
	"xtreedb/pkg/pagetrack"
	"xtreedb/pkg/snapshot"
	"xtreedb/pkg/xtree"
)

const (
	snapshotFileName = "snapshot.bin"
	identityFileName = "identity.bin"
)

// Index is the X-tree engine's public entry point. Writes are serialized
// through the underlying Tree's write lock; Index itself only guards its
// own lifecycle (closed/poisoned) state.
type Index struct {
	opts Options
	cfg  xtree.Config

	arena  *arena.Arena
	store  *nodestore.Store
	budget *cache.MemoryBudget
	cache  *cache.Cache
	tree   *xtree.Tree

	tracker *pagetrack.Tracker
	snap    *snapshot.Manager

	snapshotPath string
	identityPath string

	recordCount      uint64 // atomic
	insertsSinceSave uint64 // unused; Mmap-mode identity persistence counts recordCount

	mu       sync.Mutex
	closed   bool
	poisoned error
}

// Create opens a new or existing index per opts.Mode (§4.9 "create").
func Create(opts Options) (*Index, error) {
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("xtreedb: dimensions must be positive: %w", ErrInvalidInput)
	}
	o := opts.withDefaults()

	switch o.Mode {
	case InMemory:
		return createFresh(o, "", "")
	case Mmap, Durable:
		if o.Path == "" {
			return nil, fmt.Errorf("xtreedb: Path is required for this mode: %w", ErrInvalidInput)
		}
		snapshotPath := filepath.Join(o.Path, snapshotFileName)
		identityPath := filepath.Join(o.Path, identityFileName)
		if _, err := os.Stat(snapshotPath); err == nil {
			return openExisting(o, snapshotPath, identityPath)
		}
		if err := os.MkdirAll(o.Path, 0o755); err != nil {
			return nil, fmt.Errorf("xtreedb: creating index directory: %w", err)
		}
		return createFresh(o, snapshotPath, identityPath)
	default:
		return nil, fmt.Errorf("xtreedb: unknown mode %d: %w", o.Mode, ErrInvalidInput)
	}
}

func createFresh(o Options, snapshotPath, identityPath string) (*Index, error) {
	a, err := arena.New(arena.Options{
		Mode:       arena.ModeMemory,
		SegmentCap: o.SegmentCap,
		SegmentMax: o.SegmentMax,
		GrowthHint: o.SegmentGrowthHint,
	})
	if err != nil {
		return nil, fmt.Errorf("xtreedb: creating arena: %w", err)
	}

	store := nodestore.New(a)
	cfg := xtree.Config{Dim: o.Dimensions, MaxFanout: o.MaxFanout, MaxSupernodeFanout: o.MaxSupernodeFanout, Precision: o.Precision}
	c, budget := newCache(o)

	tree, err := xtree.New(cfg, store, c)
	if err != nil {
		return nil, fmt.Errorf("xtreedb: creating root: %w", err)
	}

	idx := &Index{
		opts: o, cfg: cfg,
		arena: a, store: store, budget: budget, cache: c, tree: tree,
		snapshotPath: snapshotPath, identityPath: identityPath,
	}
	idx.wireDurability(o)
	return idx, nil
}

func openExisting(o Options, snapshotPath, identityPath string) (*Index, error) {
	loaded, err := snapshot.Load(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("xtreedb: loading snapshot: %w: %w", ErrSnapshotCorrupt, err)
	}
	identityBytes, err := os.ReadFile(identityPath)
	if err != nil {
		return nil, fmt.Errorf("xtreedb: reading identity table: %w: %w", ErrSnapshotCorrupt, err)
	}

	a := arena.NewForRecovery(arena.Options{
		Mode:       arena.ModeMemory,
		SegmentCap: o.SegmentCap,
		SegmentMax: o.SegmentMax,
		GrowthHint: o.SegmentGrowthHint,
	})
	loaded.RestoreInto(a)

	store := nodestore.New(a)
	if err := store.LoadIdentityTable(identityBytes); err != nil {
		return nil, fmt.Errorf("xtreedb: loading identity table: %w: %w", ErrSnapshotCorrupt, err)
	}

	cfg := xtree.Config{Dim: o.Dimensions, MaxFanout: o.MaxFanout, MaxSupernodeFanout: o.MaxSupernodeFanout, Precision: o.Precision}
	c, budget := newCache(o)

	tree, err := xtree.Open(cfg, store, c)
	if err != nil {
		return nil, fmt.Errorf("xtreedb: reopening tree: %w", err)
	}

	idx := &Index{
		opts: o, cfg: cfg,
		arena: a, store: store, budget: budget, cache: c, tree: tree,
		snapshotPath: snapshotPath, identityPath: identityPath,
		recordCount: loaded.RecordCount,
	}
	idx.wireDurability(o)
	return idx, nil
}

func newCache(o Options) (*cache.Cache, *cache.MemoryBudget) {
	var budget *cache.MemoryBudget
	if o.CacheMemoryLimit > 0 {
		budget = cache.NewMemoryBudget(o.CacheMemoryLimit)
	}
	return cache.New(o.CacheCapacity, budget), budget
}

// wireDurability attaches the page tracker and snapshot manager for Mmap
// and Durable modes. InMemory leaves both nil: Insert/Commit/Close become
// no-ops for persistence.
func (idx *Index) wireDurability(o Options) {
	if o.Mode == InMemory {
		return
	}
	idx.tracker = pagetrack.New(pagetrack.Options{})
	idx.snap = snapshot.New(idx.snapshotPath, o.Dimensions, o.Precision, idx.arena, idx.tracker, snapshot.Triggers{
		OpsThreshold:          o.OpsThreshold,
		MemoryGrowthThreshold: o.MemThreshold,
		WallClockCeiling:      o.TimeCeiling,
	})
}

// Insert adds one record, built from a row identifier and its point set
// (§4.9 "insert"). Increments the operation counter and, in Mmap mode, may
// trigger a background snapshot; in Durable mode the caller must call
// Commit explicitly to make the insert durable.
func (idx *Index) Insert(rowID []byte, points [][]float64) error {
	if err := idx.checkUsable(); err != nil {
		return err
	}
	if err := idx.validate(rowID, points); err != nil {
		return err
	}

	rec := xtree.NewDataRecord(rowID, idx.cfg.Dim, points)
	if err := idx.tree.Insert(rec); err != nil {
		return fmt.Errorf("xtreedb: insert: %w", idx.classify(err))
	}

	count := atomic.AddUint64(&idx.recordCount, 1)
	if idx.opts.Mode == Mmap {
		idx.snap.SetRoot(uint64(idx.tree.RootID()), count)
		idx.snap.NoteInsert()
		idx.maybePersistIdentity(count)
	}
	return nil
}

// classify maps a lower-layer error to the façade's taxonomy (§7) so
// callers can errors.Is against the sentinels in errors.go regardless of
// which internal package actually produced the failure.
func (idx *Index) classify(err error) error {
	switch {
	case errors.Is(err, arena.ErrArenaExhausted):
		return fmt.Errorf("%w: %w", ErrArenaExhausted, err)
	case errors.Is(err, nodestore.ErrUnknownNode):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}

func (idx *Index) validate(rowID []byte, points [][]float64) error {
	if len(rowID) == 0 {
		return fmt.Errorf("xtreedb: empty row id: %w", ErrInvalidInput)
	}
	if len(points) == 0 {
		return fmt.Errorf("xtreedb: record has no points: %w", ErrInvalidInput)
	}
	for _, p := range points {
		if len(p) != idx.cfg.Dim {
			return fmt.Errorf("xtreedb: point has %d dims, index has %d: %w", len(p), idx.cfg.Dim, ErrInvalidInput)
		}
		for _, v := range p {
			if math.IsNaN(v) {
				return fmt.Errorf("xtreedb: NaN coordinate: %w", ErrInvalidInput)
			}
		}
	}
	return nil
}

// maybePersistIdentity writes the identity table sidecar every
// OpsThreshold inserts, piggybacking on the same cadence as the
// background raw-byte snapshot (§9 open question: identity persistence in
// Mmap mode rides the insert counter rather than its own trigger).
func (idx *Index) maybePersistIdentity(count uint64) {
	if count%uint64(idx.opts.OpsThreshold) != 0 {
		return
	}
	if err := idx.persistIdentity(); err != nil {
		idx.opts.Log("xtreedb: persisting identity table: %v", err)
	}
}

func (idx *Index) persistIdentity() error {
	buf := idx.store.EncodeIdentityTable()
	return atomicWriteFile(idx.identityPath, buf)
}

func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("xtreedb: writing %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("xtreedb: writing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("xtreedb: fsyncing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("xtreedb: closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("xtreedb: renaming %s into place: %w", tmp, err)
	}
	return nil
}

// Iterate returns an iterator over every record matching query under mode
// (§4.9 "iterate").
func (idx *Index) Iterate(query mbr.Key, mode xtree.Mode) (*xtree.Iterator, error) {
	if err := idx.checkUsable(); err != nil {
		return nil, err
	}
	it, err := xtree.NewIterator(idx.tree, query, mode, xtree.DFS)
	if err != nil {
		return nil, fmt.Errorf("xtreedb: iterate: %w", idx.classify(err))
	}
	return it, nil
}

// Commit durably flushes all outstanding node writes and the identity
// table, and durably updates the root (§4.9 "commit"). A no-op outside
// Durable mode. On failure the index is poisoned: every subsequent
// operation returns the same error until Close.
func (idx *Index) Commit() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	if idx.poisoned != nil {
		return idx.poisoned
	}
	if idx.opts.Mode != Durable {
		return nil
	}

	if _, err := idx.store.Commit(); err != nil {
		idx.poisoned = fmt.Errorf("xtreedb: commit: %w: %w", ErrDurableCommitFailed, err)
		return idx.poisoned
	}
	idx.snap.SetRoot(uint64(idx.tree.RootID()), atomic.LoadUint64(&idx.recordCount))
	if err := idx.snap.Save(); err != nil {
		idx.poisoned = fmt.Errorf("xtreedb: commit: saving snapshot: %w: %w", ErrDurableCommitFailed, err)
		return idx.poisoned
	}
	if err := idx.persistIdentity(); err != nil {
		idx.poisoned = fmt.Errorf("xtreedb: commit: %w: %w", ErrDurableCommitFailed, err)
		return idx.poisoned
	}
	return nil
}

// Close flushes (Mmap and Durable modes) and releases all resources. Safe
// to call more than once (§4.9 "close").
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true

	if idx.snap != nil {
		idx.snap.SetRoot(uint64(idx.tree.RootID()), atomic.LoadUint64(&idx.recordCount))
		if err := idx.snap.Save(); err != nil {
			idx.opts.Log("xtreedb: close: saving snapshot: %v", err)
		}
		if err := idx.persistIdentity(); err != nil {
			idx.opts.Log("xtreedb: close: persisting identity table: %v", err)
		}
	}
	return idx.arena.Close()
}

func (idx *Index) checkUsable() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	if idx.poisoned != nil {
		return idx.poisoned
	}
	return nil
}

// RecordCount returns the number of records inserted so far.
func (idx *Index) RecordCount() uint64 {
	return atomic.LoadUint64(&idx.recordCount)
}
