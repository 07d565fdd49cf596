//go:build windows

// pkg/arena/mmap_windows.go
package arena

import (
	"errors"
	"os"
	"reflect"
	"unsafe"

	"golang.org/x/sys/windows"
)

// segmentHandle stores Windows-specific handles for memory mapping.
type segmentHandle struct {
	file       *os.File
	mapHandle  windows.Handle
	mappedSize int64
	readOnly   bool
}

// openSegmentFile opens or creates a memory-mapped file backing one segment.
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

	return mapSegment(f, size, false)
}

// openSegmentFileReadOnly maps an existing file read-only.
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
	return mapSegment(f, size, true)
}

func mapSegment(f *os.File, size int64, readOnly bool) (*segmentFile, error) {
	protect := uint32(windows.PAGE_READWRITE)
	access := uint32(windows.FILE_MAP_READ | windows.FILE_MAP_WRITE)
	if readOnly {
		protect = windows.PAGE_READONLY
		access = windows.FILE_MAP_READ
	}

	mapHandle, err := windows.CreateFileMapping(
		windows.Handle(f.Fd()), nil, protect,
		uint32(size>>32), uint32(size&0xFFFFFFFF), nil,
	)
	if err != nil {
		f.Close()
		return nil, err
	}

	addr, err := windows.MapViewOfFile(mapHandle, access, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapHandle)
		f.Close()
		return nil, err
	}

	var data []byte
	header := (*reflect.SliceHeader)(unsafe.Pointer(&data))
	header.Data = addr
	header.Len = int(size)
	header.Cap = int(size)

	handle := &segmentHandle{file: f, mapHandle: mapHandle, mappedSize: size, readOnly: readOnly}
	return &segmentFile{file: handle, data: data, size: size}, nil
}

// Sync flushes changes to disk.
func (m *segmentFile) Sync() error {
	if len(m.data) == 0 {
		return nil
	}
	return windows.FlushViewOfFile(uintptr(unsafe.Pointer(&m.data[0])), uintptr(len(m.data)))
}

// Grow extends the file and remaps it.
func (m *segmentFile) Grow(newSize int64) error {
	if newSize <= m.size {
		return nil
	}

	handle := m.file.(*segmentHandle)

	if len(m.data) > 0 {
		if err := windows.FlushViewOfFile(uintptr(unsafe.Pointer(&m.data[0])), uintptr(len(m.data))); err != nil {
			return err
		}
		if err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&m.data[0]))); err != nil {
			return err
		}
	}
	if err := windows.CloseHandle(handle.mapHandle); err != nil {
		return err
	}
	if err := handle.file.Truncate(newSize); err != nil {
		return err
	}

	remapped, err := mapSegment(handle.file, newSize, handle.readOnly)
	if err != nil {
		return err
	}

	*handle = *(remapped.file.(*segmentHandle))
	m.data = remapped.data
	m.size = newSize
	return nil
}

// protectReadOnly and protectReadWrite are no-ops on Windows: no
// VirtualProtect call is made for a segment.
func (m *segmentFile) protectReadOnly() error  { return nil }
func (m *segmentFile) protectReadWrite() error { return nil }

// Close unmaps and closes the file.
func (m *segmentFile) Close() error {
	var firstErr error

	handle, ok := m.file.(*segmentHandle)
	if !ok || handle == nil {
		return nil
	}

	if len(m.data) > 0 {
		if err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&m.data[0]))); err != nil && firstErr == nil {
			firstErr = err
		}
		m.data = nil
	}
	if handle.mapHandle != 0 {
		if err := windows.CloseHandle(handle.mapHandle); err != nil && firstErr == nil {
			firstErr = err
		}
		handle.mapHandle = 0
	}
	if handle.file != nil {
		if err := handle.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		handle.file = nil
	}

	m.file = nil
	return firstErr
}
