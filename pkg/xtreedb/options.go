// pkg/xtreedb/options.go
//
// Options is the façade's configuration struct, gathering the knob table
// from §6 into one plain struct passed to Create — matching the teacher's
// pager.Options / MariOpts pattern rather than a builder or a config
// library.
package xtreedb

import "time"

// Mode selects the façade's storage strategy (§4.9 create).
type Mode int

const (
	// InMemory backs the arena with plain Go slices. Nothing is ever
	// written to disk; Commit is a no-op.
	InMemory Mode = iota
	// Mmap also backs the arena with plain Go slices (the arena is not
	// memory-mapped) and persists with periodic whole-arena snapshots
	// plus an identity-table file (§4.2).
	Mmap
	// Durable also backs the arena with plain Go slices (the arena is not
	// memory-mapped) and persists explicitly via Commit, which writes and
	// fsyncs a whole-arena snapshot and the identity table before
	// returning (§4.4).
	Durable
)

// Options configures a new or reopened Index.
type Options struct {
	// Dimensions is the number of axes every key in this index has.
	// Immutable once the index is created.
	Dimensions int
	// Precision is the number of bits per ordered-float bound. Defaults
	// to 32 (§6).
	Precision int
	// Mode selects the storage strategy. Defaults to InMemory.
	Mode Mode
	// Path is the directory holding the snapshot file and the identity
	// table (Mmap and Durable modes). Required for every mode but
	// InMemory.
	Path string

	// MaxFanout (M) bounds a regular node's child count. Defaults to 231.
	MaxFanout int
	// MaxSupernodeFanout (M_max) bounds a supernode's child count.
	// Defaults to 3*MaxFanout.
	MaxSupernodeFanout int

	// CacheCapacity bounds the number of decoded nodes held in the node
	// cache. Defaults to 4096.
	CacheCapacity int
	// CacheMemoryLimit bounds total tracked cache bytes, enforced by a
	// cache.MemoryBudget. Zero disables budget tracking (size-only LRU).
	CacheMemoryLimit int64

	// SegmentCap bounds a single arena segment's size. Defaults to 1 GiB.
	SegmentCap int64
	// SegmentMax bounds the number of arena segments. Defaults to 4096.
	SegmentMax int
	// SegmentGrowthHint sizes a freshly created segment's first
	// allocation.
	SegmentGrowthHint int64

	// OpsThreshold is the number of inserts between automatic snapshots
	// (Mmap mode only). Defaults to 10000.
	OpsThreshold int64
	// MemThreshold is the tracked-byte growth that triggers an automatic
	// snapshot (Mmap mode only). Defaults to 64 MiB.
	MemThreshold int64
	// TimeCeiling is the maximum interval between snapshots (Mmap mode
	// only). Defaults to 30s.
	TimeCeiling time.Duration

	// Log receives best-effort diagnostics: failed identity-table writes
	// in Mmap mode and failed saves in Close. Errors from background
	// snapshots are discarded without reaching Log. Nil discards them.
	Log func(format string, args ...any)
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Precision <= 0 {
		out.Precision = 32
	}
	if out.MaxFanout <= 0 {
		out.MaxFanout = 231
	}
	if out.MaxSupernodeFanout <= 0 {
		out.MaxSupernodeFanout = 3 * out.MaxFanout
	}
	if out.CacheCapacity <= 0 {
		out.CacheCapacity = 4096
	}
	if out.SegmentCap <= 0 {
		out.SegmentCap = 1 << 30
	}
	if out.SegmentMax <= 0 {
		out.SegmentMax = 4096
	}
	if out.OpsThreshold <= 0 {
		out.OpsThreshold = 10000
	}
	if out.MemThreshold <= 0 {
		out.MemThreshold = 64 << 20
	}
	if out.TimeCeiling <= 0 {
		out.TimeCeiling = 30 * time.Second
	}
	if out.Log == nil {
		out.Log = func(string, ...any) {}
	}
	return out
}
