// pkg/arena/arena.go
//
// Package arena implements the bump allocator over one or more
// page-aligned segments described in spec §4.1. Offsets returned by
// Allocate are logical 64-bit values encoding (segment index, intra-segment
// offset); they are the canonical reference used by every node that lives
// in the arena, so that a snapshot load can remap segments without any
// pointer fixup.
package arena

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// segmentIndexShift reserves the low 40 bits of an Offset for the
	// intra-segment byte offset (1 TiB of addressable space per segment,
	// comfortably above the 1 GiB default segment cap) and the remaining
	// high bits for the segment index.
	segmentIndexShift = 40
	intraOffsetMask   = (uint64(1) << segmentIndexShift) - 1

	// alignment all allocations are rounded up to.
	alignment = 8

	defaultSegmentCap    = 1 << 30 // 1 GiB, per §6 segment_cap default
	defaultSegmentMax    = 4096    // per §6 segment_max default
	defaultSegmentGrowth = 1 << 20 // initial in-memory segment size, grows on demand
)

// ErrArenaExhausted is returned by Allocate when the segment cap is
// reached (§7 error taxonomy).
var ErrArenaExhausted = errors.New("arena: exhausted (segment cap reached)")

// Offset is a logical reference into the arena: (segment index, intra
// segment offset) packed into a single uint64. It is never a raw pointer.
type Offset uint64

// NilOffset is the zero value, returned by Allocate alongside an error. It
// is also the offset of the first allocation in segment 0, so a zero
// Offset alone does not mean "no offset".
const NilOffset Offset = 0

// Segment returns the segment index this offset refers to.
func (o Offset) Segment() int { return int(uint64(o) >> segmentIndexShift) }

// Intra returns the intra-segment byte offset.
func (o Offset) Intra() int64 { return int64(uint64(o) & intraOffsetMask) }

func makeOffset(segment int, intra int64) Offset {
	return Offset(uint64(segment)<<segmentIndexShift | (uint64(intra) & intraOffsetMask))
}

// Mode selects what kind of storage backs each arena segment.
type Mode int

const (
	// ModeMemory backs every segment with a plain Go byte slice. No file
	// I/O occurs. Every façade mode runs its arena in this mode.
	ModeMemory Mode = iota
	// ModeMmap backs every segment with a memory-mapped file. The façade
	// does not use it.
	ModeMmap
)

// Options configures a new Arena.
type Options struct {
	// Mode selects in-memory or mmap-backed segments.
	Mode Mode
	// Dir is the directory segment files are created in when Mode is
	// ModeMmap. Ignored for ModeMemory.
	Dir string
	// SegmentCap bounds the size of a single segment in bytes. Defaults to
	// 1 GiB (§6 segment_cap).
	SegmentCap int64
	// SegmentMax bounds the number of segments the arena may grow to.
	// Defaults to 4096 (§6 segment_max).
	SegmentMax int
	// GrowthHint sizes the first allocation of a freshly created segment;
	// subsequent growth within a segment doubles up to SegmentCap. This is
	// the "cow_allocator.hpp segment-growth-factor" supplement noted in
	// SPEC_FULL.md; zero means a 4 KiB first allocation.
	GrowthHint int64
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.SegmentCap <= 0 {
		out.SegmentCap = defaultSegmentCap
	}
	if out.SegmentMax <= 0 {
		out.SegmentMax = defaultSegmentMax
	}
	if out.GrowthHint <= 0 {
		out.GrowthHint = 4096
	}
	return out
}

// segment is one contiguous, page-aligned region of the arena.
type segment struct {
	storage segmentStorage
	used    int64 // bump pointer: bytes in [0, used) are allocated
}

// Arena is a segmented bump allocator. All mutating methods are safe for
// concurrent use; the façade additionally serializes writers per §5, so the
// mutex here mostly protects segment-growth bookkeeping against the
// background snapshot reader.
type Arena struct {
	mu       sync.RWMutex
	opts     Options
	segments []*segment
}

// New creates an empty Arena with one initial segment.
func New(opts Options) (*Arena, error) {
	o := opts.withDefaults()
	a := &Arena{opts: o}
	if _, err := a.addSegment(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewForRecovery creates an Arena with zero segments, for the snapshot
// manager to repopulate via LoadSegmentFrom before any Allocate call. Using
// New here would leave a stray empty segment 0 ahead of the recovered
// segments, shifting every persisted Offset's segment index.
func NewForRecovery(opts Options) *Arena {
	o := opts.withDefaults()
	return &Arena{opts: o}
}

func (a *Arena) addSegment() (*segment, error) {
	if len(a.segments) >= a.opts.SegmentMax {
		return nil, ErrArenaExhausted
	}

	var storage segmentStorage
	var err error
	switch a.opts.Mode {
	case ModeMmap:
		path := fmt.Sprintf("%s/segment-%04d.dat", a.opts.Dir, len(a.segments))
		var sf *segmentFile
		sf, err = openSegmentFile(path, a.opts.GrowthHint)
		storage = sf
	default:
		storage = newMemorySegment(a.opts.GrowthHint)
	}
	if err != nil {
		return nil, fmt.Errorf("arena: opening segment %d: %w", len(a.segments), err)
	}

	s := &segment{storage: storage}
	a.segments = append(a.segments, s)
	return s, nil
}

// Allocate reserves size bytes (rounded up to 8-byte alignment) and returns
// the logical offset of the reservation. It grows the current segment (or
// opens a new one) as needed, and fails with ErrArenaExhausted if the
// segment cap has been reached.
func (a *Arena) Allocate(size int64) (Offset, error) {
	if size <= 0 {
		return NilOffset, fmt.Errorf("arena: invalid allocation size %d", size)
	}
	aligned := (size + alignment - 1) &^ (alignment - 1)

	a.mu.Lock()
	defer a.mu.Unlock()

	idx := len(a.segments) - 1
	s := a.segments[idx]

	if s.used+aligned > a.opts.SegmentCap {
		var err error
		s, err = a.addSegment()
		if err != nil {
			return NilOffset, err
		}
		idx = len(a.segments) - 1
	}

	need := s.used + aligned
	if need > s.storage.Size() {
		newSize := s.storage.Size()
		if newSize == 0 {
			newSize = a.opts.GrowthHint
		}
		for newSize < need {
			newSize *= 2
		}
		if newSize > a.opts.SegmentCap {
			newSize = a.opts.SegmentCap
		}
		if err := s.storage.Grow(newSize); err != nil {
			return NilOffset, fmt.Errorf("arena: growing segment %d: %w", idx, err)
		}
	}

	off := makeOffset(idx, s.used)
	s.used += aligned
	return off, nil
}

// Resolve translates a logical offset to a raw byte slice of the requested
// length. Behavior is undefined if off was never returned by Allocate (or a
// load routine) for this arena, or if the segment has been unmapped.
func (a *Arena) Resolve(off Offset, length int) []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()

	idx := off.Segment()
	if idx < 0 || idx >= len(a.segments) {
		return nil
	}
	return a.segments[idx].storage.Slice(int(off.Intra()), length)
}

// UsedBytes returns the total number of bytes allocated across all segments.
func (a *Arena) UsedBytes() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var total int64
	for _, s := range a.segments {
		total += s.used
	}
	return total
}

// TotalBytes returns the total backing capacity across all segments
// (including unused tail space within each segment's current allocation).
func (a *Arena) TotalBytes() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var total int64
	for _, s := range a.segments {
		total += s.storage.Size()
	}
	return total
}

// SegmentCount returns the number of segments currently open.
func (a *Arena) SegmentCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.segments)
}

// SegmentData returns the raw backing bytes of segment i, up to its used
// watermark. Used by the snapshot manager to serialize a segment.
func (a *Arena) SegmentData(i int) []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if i < 0 || i >= len(a.segments) {
		return nil
	}
	s := a.segments[i]
	return s.storage.Slice(0, int(s.used))
}

// SegmentUsed returns the used watermark of segment i.
func (a *Arena) SegmentUsed(i int) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if i < 0 || i >= len(a.segments) {
		return 0
	}
	return a.segments[i].used
}

// LoadSegmentFrom installs a pre-existing segment (e.g. loaded from a
// snapshot file) as segment index len(segments), marking `used` bytes as
// already allocated. Used only during recovery (§4.1).
func (a *Arena) LoadSegmentFrom(data []byte, used int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.segments = append(a.segments, &segment{
		storage: newMemorySegment(int64(len(data))),
		used:    used,
	})
	copy(a.segments[len(a.segments)-1].storage.Slice(0, len(data)), data)
}

// RestoreStateAfterLoad sets the bump pointer of the last segment so that
// further allocations never overwrite bytes loaded from a snapshot.
func (a *Arena) RestoreStateAfterLoad(lastSegment int, lastUsed int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if lastSegment < 0 || lastSegment >= len(a.segments) {
		return
	}
	a.segments[lastSegment].used = lastUsed
}

// Sync flushes all segments' pending writes to their backing storage.
func (a *Arena) Sync() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for i, s := range a.segments {
		if err := s.storage.Sync(); err != nil {
			return fmt.Errorf("arena: syncing segment %d: %w", i, err)
		}
	}
	return nil
}

// Close releases all segments. The arena must not be used afterward.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for i, s := range a.segments {
		if err := s.storage.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("arena: closing segment %d: %w", i, err)
		}
	}
	a.segments = nil
	return firstErr
}
