// pkg/snapshot/snapshot.go
//
// Package snapshot implements the copy-on-write snapshot manager (§4.2): it
// produces atomic on-disk snapshots of an arena and, on startup, reads a
// prior snapshot back for the arena's recovery hooks. Load reads the whole
// file with os.ReadFile rather than memory-mapping it, and RestoreInto
// copies each segment into fresh in-memory arena storage.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"xtreedb/pkg/arena"
	"xtreedb/pkg/pagetrack"
)

// Source is the subset of *arena.Arena the snapshot manager needs, kept as
// an interface so tests can substitute a fake.
type Source interface {
	SegmentCount() int
	SegmentData(i int) []byte
	SegmentUsed(i int) int64
	UsedBytes() int64
}

// Triggers configure when a background snapshot fires.
type Triggers struct {
	// OpsThreshold fires a snapshot every N inserts.
	OpsThreshold int64
	// MemoryGrowthThreshold fires a snapshot once UsedBytes has grown by
	// this many bytes since the last snapshot.
	MemoryGrowthThreshold int64
	// WallClockCeiling fires a snapshot if this much time has passed since
	// the last one, regardless of activity.
	WallClockCeiling time.Duration
}

func (t *Triggers) withDefaults() Triggers {
	out := *t
	if out.OpsThreshold <= 0 {
		out.OpsThreshold = 10000
	}
	if out.MemoryGrowthThreshold <= 0 {
		out.MemoryGrowthThreshold = 64 << 20
	}
	if out.WallClockCeiling <= 0 {
		out.WallClockCeiling = 30 * time.Second
	}
	return out
}

// Manager drives background and on-demand snapshots for one arena.
type Manager struct {
	path    string
	dim     int
	prec    int
	source  Source
	tracker *pagetrack.Tracker
	trig    Triggers

	mu           sync.Mutex
	inFlight     int32 // atomic: 0 or 1, guards concurrent background triggers
	opsSince     int64 // atomic
	lastUsed     int64
	lastSnapshot time.Time
	rootOffset   uint64
	recordCount  uint64
}

// New creates a Manager that will save snapshots to path.
func New(path string, dim, precisionBits int, source Source, tracker *pagetrack.Tracker, trig Triggers) *Manager {
	return &Manager{
		path:         path,
		dim:          dim,
		prec:         precisionBits,
		source:       source,
		tracker:      tracker,
		trig:         trig.withDefaults(),
		lastSnapshot: time.Now(),
	}
}

// SetRoot records the current root offset and record count to be embedded
// in the next snapshot header.
func (m *Manager) SetRoot(rootOffset uint64, recordCount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rootOffset = rootOffset
	m.recordCount = recordCount
}

// NoteInsert increments the operation counter and triggers a background
// snapshot if any threshold in Triggers has been crossed. The snapshot
// itself runs on its own goroutine; if one is already in flight, the
// trigger is suppressed rather than queued. Below OpsThreshold, the memory
// and time checks take the manager's lock, which Save holds while it
// writes, so this call can wait for an in-flight snapshot to finish.
func (m *Manager) NoteInsert() {
	n := atomic.AddInt64(&m.opsSince, 1)
	if n < m.trig.OpsThreshold {
		if !m.memoryGrew() && time.Since(m.lastSnapshotTime()) < m.trig.WallClockCeiling {
			return
		}
	}
	m.maybeSnapshotAsync()
}

func (m *Manager) memoryGrew() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source.UsedBytes()-m.lastUsed >= m.trig.MemoryGrowthThreshold
}

func (m *Manager) lastSnapshotTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSnapshot
}

func (m *Manager) maybeSnapshotAsync() {
	if !atomic.CompareAndSwapInt32(&m.inFlight, 0, 1) {
		return
	}
	go func() {
		defer atomic.StoreInt32(&m.inFlight, 0)
		_ = m.Save()
	}()
}

// Save performs a synchronous snapshot: reset the page tracker's hot
// flags, write header + descriptors + segment data to a temp file, fsync,
// then atomically rename over the destination (§4.2 save algorithm). Hot
// pages are not prefaulted and no page is marked read-only.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tracker != nil {
		m.tracker.Reset()
	}

	n := m.source.SegmentCount()
	if n == 1 {
		if err := m.saveV1(); err != nil {
			return err
		}
	} else {
		if err := m.saveV2(n); err != nil {
			return err
		}
	}

	m.lastUsed = m.source.UsedBytes()
	m.lastSnapshot = time.Now()
	atomic.StoreInt64(&m.opsSince, 0)
	return nil
}

func (m *Manager) saveV1() error {
	data := m.source.SegmentData(0)
	checksum := Checksum(data)

	h := HeaderV1{
		Timestamp:   time.Now().UnixNano(),
		UsedSize:    uint64(len(data)),
		ArenaSize:   uint64(len(data)),
		Dimension:   uint32(m.dim),
		Precision:   uint32(m.prec),
		RecordCount: m.recordCount,
		Checksum:    checksum,
		RootOffset:  m.rootOffset,
	}

	buf := append(h.Encode(), data...)
	return atomicWriteFile(m.path, buf)
}

func (m *Manager) saveV2(n int) error {
	descriptors := make([]SegmentDescriptor, n)
	var all []byte
	offset := uint64(HeaderSizeV2 + n*SegmentDescriptorSize)
	var totalUsed uint64
	for i := 0; i < n; i++ {
		data := m.source.SegmentData(i)
		used := m.source.SegmentUsed(i)
		descriptors[i] = SegmentDescriptor{
			Size:       uint64(len(data)),
			Used:       uint64(used),
			FileOffset: offset,
		}
		all = append(all, data...)
		offset += uint64(len(data))
		totalUsed += uint64(used)
	}

	checksum := Checksum(all)
	h := HeaderV2{
		Timestamp:   time.Now().UnixNano(),
		TotalUsed:   totalUsed,
		NumSegments: uint32(n),
		RootOffset:  m.rootOffset,
		Dimension:   uint32(m.dim),
		Precision:   uint32(m.prec),
		RecordCount: m.recordCount,
		Checksum:    checksum,
	}

	buf := h.Encode()
	for _, d := range descriptors {
		buf = append(buf, d.Encode()...)
	}
	buf = append(buf, all...)
	return atomicWriteFile(m.path, buf)
}

// atomicWriteFile writes data to a ".tmp" sibling of path in write calls of
// at most 1 GiB each, fsyncs it, then renames it over path. Any failure
// leaves the previous snapshot untouched.
func atomicWriteFile(path string, data []byte) error {
	const maxWriteChunk = 1 << 30
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("snapshot: creating temp file: %w", err)
	}
	for off := 0; off < len(data); off += maxWriteChunk {
		end := off + maxWriteChunk
		if end > len(data) {
			end = len(data)
		}
		if _, err := f.Write(data[off:end]); err != nil {
			f.Close()
			return fmt.Errorf("snapshot: writing temp file: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: fsyncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot: closing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: renaming into place: %w", err)
	}
	return nil
}

// Loaded is the result of opening a prior snapshot: decoded header fields
// plus the raw segment byte slices, ready to be handed to the arena's
// LoadSegmentFrom/RestoreStateAfterLoad recovery hooks.
type Loaded struct {
	Dimension   int
	Precision   int
	RecordCount uint64
	RootOffset  uint64
	Segments    [][]byte
	SegmentUsed []int64
}

// Load opens path read-only, verifies its checksum, and returns its decoded
// contents. Any checksum mismatch fails the whole load — the caller must
// not proceed with a corrupt snapshot (§4.2 failure semantics).
func Load(path string) (*Loaded, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading %s: %w", path, err)
	}
	if len(raw) < 4 {
		return nil, ErrTruncated
	}

	magic := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	switch magic {
	case MagicV1:
		return loadV1(raw)
	case MagicV2:
		return loadV2(raw)
	default:
		return nil, ErrBadMagic
	}
}

func loadV1(raw []byte) (*Loaded, error) {
	h, err := DecodeHeaderV1(raw)
	if err != nil {
		return nil, err
	}
	if uint64(len(raw)) < uint64(HeaderSizeV1)+h.UsedSize {
		return nil, ErrTruncated
	}
	data := raw[HeaderSizeV1 : uint64(HeaderSizeV1)+h.UsedSize]
	if Checksum(data) != h.Checksum {
		return nil, ErrChecksumMismatch
	}
	return &Loaded{
		Dimension:   int(h.Dimension),
		Precision:   int(h.Precision),
		RecordCount: h.RecordCount,
		RootOffset:  h.RootOffset,
		Segments:    [][]byte{data},
		SegmentUsed: []int64{int64(h.UsedSize)},
	}, nil
}

func loadV2(raw []byte) (*Loaded, error) {
	h, err := DecodeHeaderV2(raw)
	if err != nil {
		return nil, err
	}
	n := int(h.NumSegments)
	descStart := HeaderSizeV2
	descEnd := descStart + n*SegmentDescriptorSize
	if len(raw) < descEnd {
		return nil, ErrTruncated
	}

	descriptors := make([]SegmentDescriptor, n)
	for i := 0; i < n; i++ {
		d, err := DecodeSegmentDescriptor(raw[descStart+i*SegmentDescriptorSize:])
		if err != nil {
			return nil, err
		}
		descriptors[i] = d
	}

	var all []byte
	segments := make([][]byte, n)
	used := make([]int64, n)
	for i, d := range descriptors {
		end := d.FileOffset + d.Size
		if uint64(len(raw)) < end {
			return nil, ErrTruncated
		}
		segments[i] = raw[d.FileOffset:end]
		used[i] = int64(d.Used)
		all = append(all, raw[d.FileOffset:d.FileOffset+d.Used]...)
	}

	if Checksum(all) != h.Checksum {
		return nil, ErrChecksumMismatch
	}

	return &Loaded{
		Dimension:   int(h.Dimension),
		Precision:   int(h.Precision),
		RecordCount: h.RecordCount,
		RootOffset:  h.RootOffset,
		Segments:    segments,
		SegmentUsed: used,
	}, nil
}

// RestoreInto installs every loaded segment into dst via LoadSegmentFrom,
// in order, then restores the bump pointer of the final segment so that
// subsequent allocations append after the recovered data.
func (l *Loaded) RestoreInto(dst *arena.Arena) {
	for i, seg := range l.Segments {
		dst.LoadSegmentFrom(seg, l.SegmentUsed[i])
	}
	last := dst.SegmentCount() - 1
	dst.RestoreStateAfterLoad(last, l.SegmentUsed[len(l.SegmentUsed)-1])
}
