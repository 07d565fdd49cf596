//go:build unix || darwin || linux || freebsd || openbsd || netbsd

// pkg/arena/mmap_unix.go
package arena

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// openSegmentFile opens or creates a memory-mapped file backing one segment.
// If initialSize > 0 and the file doesn't exist or is smaller, it is extended.
func openSegmentFile(path string, initialSize int64) (*segmentFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := stat.Size()
	if initialSize > size {
		if err := f.Truncate(initialSize); err != nil {
			f.Close()
			return nil, err
		}
		size = initialSize
	}

	if size == 0 {
		f.Close()
		return nil, errors.New("arena: cannot mmap an empty segment file")
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &segmentFile{file: f, data: data, size: size}, nil
}

// openSegmentFileReadOnly maps an existing file read-only, used when loading
// a snapshot's first segment as borrowed arena storage (§4.2 load algorithm).
func openSegmentFileReadOnly(path string) (*segmentFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := stat.Size()
	if size == 0 {
		f.Close()
		return nil, errors.New("arena: cannot mmap an empty segment file")
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &segmentFile{file: f, data: data, size: size}, nil
}

// Sync flushes changes to disk.
func (m *segmentFile) Sync() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Grow extends the file and remaps it.
func (m *segmentFile) Grow(newSize int64) error {
	if newSize <= m.size {
		return nil
	}

	// With MAP_SHARED, writes land in the kernel page cache but may not be
	// flushed yet. Sync before unmap/remap so nothing is lost in between.
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return err
	}
	if err := syscall.Munmap(m.data); err != nil {
		return err
	}

	f := m.file.(*os.File)
	if err := f.Truncate(newSize); err != nil {
		return err
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(newSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return err
	}

	m.data = data
	m.size = newSize
	return nil
}

// protectReadOnly marks the segment's mapped pages read-only (§9
// "Copy-on-write page protection"). Nothing in the module calls it.
func (m *segmentFile) protectReadOnly() error {
	if len(m.data) == 0 {
		return nil
	}
	return unix.Mprotect(m.data, unix.PROT_READ)
}

// protectReadWrite restores read-write access after a snapshot completes.
func (m *segmentFile) protectReadWrite() error {
	if len(m.data) == 0 {
		return nil
	}
	return unix.Mprotect(m.data, unix.PROT_READ|unix.PROT_WRITE)
}

// Close unmaps and closes the file.
func (m *segmentFile) Close() error {
	var firstErr error

	if m.data != nil {
		if err := syscall.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = err
		}
		m.data = nil
	}

	if m.file != nil {
		f := m.file.(*os.File)
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.file = nil
	}

	return firstErr
}
