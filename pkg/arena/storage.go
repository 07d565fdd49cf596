// pkg/arena/storage.go
package arena

// segmentStorage is the interface one arena segment's backing storage
// implements. This abstraction lets a segment be backed by either raw
// process memory (ModeMemory, which every façade mode uses) or a
// memory-mapped file (ModeMmap) without the allocator caring which.
type segmentStorage interface {
	// Size returns the current size of the storage in bytes.
	Size() int64

	// Slice returns a slice of the storage data at the given offset and
	// length. Returns nil if the requested range is out of bounds.
	Slice(offset, length int) []byte

	// Sync flushes any pending writes to the underlying storage. For
	// in-memory storage this is a no-op.
	Sync() error

	// Grow extends the storage to the specified size. If newSize is less
	// than or equal to the current size, this is a no-op.
	Grow(newSize int64) error

	// Close releases any resources associated with the storage.
	Close() error
}

// memorySegment implements segmentStorage using a plain in-memory byte
// slice. Used for ModeMemory, where no disk I/O occurs.
type memorySegment struct {
	data []byte
	size int64
}

// newMemorySegment creates a new in-memory segment with the given initial size.
func newMemorySegment(initialSize int64) *memorySegment {
	if initialSize <= 0 {
		initialSize = int64(defaultSegmentGrowth)
	}
	return &memorySegment{
		data: make([]byte, initialSize),
		size: initialSize,
	}
}

func (m *memorySegment) Size() int64 { return m.size }

func (m *memorySegment) Slice(offset, length int) []byte {
	if offset < 0 || length < 0 || offset+length > len(m.data) {
		return nil
	}
	return m.data[offset : offset+length]
}

func (m *memorySegment) Sync() error { return nil }

func (m *memorySegment) Grow(newSize int64) error {
	if newSize <= m.size {
		return nil
	}
	newData := make([]byte, newSize)
	copy(newData, m.data)
	m.data = newData
	m.size = newSize
	return nil
}

func (m *memorySegment) Close() error {
	m.data = nil
	m.size = 0
	return nil
}
