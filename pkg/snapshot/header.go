// pkg/snapshot/header.go
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MagicV1 identifies a single-segment snapshot ("XTRE" in ASCII, packed
// little-endian).
const MagicV1 uint32 = 0x58545245

// MagicV2 identifies a multi-segment snapshot.
const MagicV2 uint32 = 0x58545246

const (
	// HeaderSizeV1 is the fixed byte size of the v1 header.
	HeaderSizeV1 = 64
	// HeaderSizeV2 is the fixed byte size of the v2 header.
	HeaderSizeV2 = 64

	// SegmentDescriptorSize is the encoded size of one (size, used,
	// fileOffset) triple in a v2 header's descriptor array.
	SegmentDescriptorSize = 24
)

var (
	// ErrBadMagic means the file does not begin with a recognized magic.
	ErrBadMagic = errors.New("snapshot: unrecognized magic number")
	// ErrUnsupportedVersion means the magic matched but the version field
	// inside the header did not.
	ErrUnsupportedVersion = errors.New("snapshot: unsupported header version")
	// ErrChecksumMismatch means the recomputed checksum did not match the
	// header's recorded checksum.
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	// ErrTruncated means the file is shorter than its header claims.
	ErrTruncated = errors.New("snapshot: file truncated")
)

// HeaderV1 is the fixed single-segment snapshot header.
//
// Wire layout (64 bytes, little-endian):
//
//	[0:4]   magic
//	[4:4]   version (uint32, always 1)
//	[8:8]   timestamp (unix nanos)
//	[16:8]  used size
//	[24:8]  arena size
//	[32:4]  dimension
//	[36:4]  precision
//	[40:8]  record count
//	[48:4]  checksum
//	[52:8]  root offset
//	[60:4]  reserved padding
type HeaderV1 struct {
	Version     uint32
	Timestamp   int64
	UsedSize    uint64
	ArenaSize   uint64
	Dimension   uint32
	Precision   uint32
	RecordCount uint64
	Checksum    uint32
	RootOffset  uint64
}

// Encode writes h to a fresh HeaderSizeV1-byte buffer.
func (h HeaderV1) Encode() []byte {
	buf := make([]byte, HeaderSizeV1)
	binary.LittleEndian.PutUint32(buf[0:4], MagicV1)
	binary.LittleEndian.PutUint32(buf[4:8], 1)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Timestamp))
	binary.LittleEndian.PutUint64(buf[16:24], h.UsedSize)
	binary.LittleEndian.PutUint64(buf[24:32], h.ArenaSize)
	binary.LittleEndian.PutUint32(buf[32:36], h.Dimension)
	binary.LittleEndian.PutUint32(buf[36:40], h.Precision)
	binary.LittleEndian.PutUint64(buf[40:48], h.RecordCount)
	binary.LittleEndian.PutUint32(buf[48:52], h.Checksum)
	binary.LittleEndian.PutUint64(buf[52:60], h.RootOffset)
	return buf
}

// DecodeHeaderV1 parses a HeaderSizeV1-byte buffer.
func DecodeHeaderV1(buf []byte) (HeaderV1, error) {
	if len(buf) < HeaderSizeV1 {
		return HeaderV1{}, ErrTruncated
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != MagicV1 {
		return HeaderV1{}, ErrBadMagic
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != 1 {
		return HeaderV1{}, fmt.Errorf("%w: got %d", ErrUnsupportedVersion, version)
	}
	return HeaderV1{
		Version:     version,
		Timestamp:   int64(binary.LittleEndian.Uint64(buf[8:16])),
		UsedSize:    binary.LittleEndian.Uint64(buf[16:24]),
		ArenaSize:   binary.LittleEndian.Uint64(buf[24:32]),
		Dimension:   binary.LittleEndian.Uint32(buf[32:36]),
		Precision:   binary.LittleEndian.Uint32(buf[36:40]),
		RecordCount: binary.LittleEndian.Uint64(buf[40:48]),
		Checksum:    binary.LittleEndian.Uint32(buf[48:52]),
		RootOffset:  binary.LittleEndian.Uint64(buf[52:60]),
	}, nil
}

// HeaderV2 is the fixed multi-segment snapshot header, followed on disk by
// NumSegments SegmentDescriptor entries.
//
// Wire layout (64 bytes, little-endian):
//
//	[0:4]   magic
//	[4:4]   version (uint32, always 2)
//	[8:8]   timestamp (unix nanos)
//	[16:8]  total used
//	[24:4]  number of segments
//	[28:4]  padding
//	[32:8]  root offset
//	[40:4]  dimension
//	[44:4]  precision
//	[48:8]  record count
//	[56:4]  checksum
//	[60:4]  reserved padding
type HeaderV2 struct {
	Version     uint32
	Timestamp   int64
	TotalUsed   uint64
	NumSegments uint32
	RootOffset  uint64
	Dimension   uint32
	Precision   uint32
	RecordCount uint64
	Checksum    uint32
}

// Encode writes h to a fresh HeaderSizeV2-byte buffer.
func (h HeaderV2) Encode() []byte {
	buf := make([]byte, HeaderSizeV2)
	binary.LittleEndian.PutUint32(buf[0:4], MagicV2)
	binary.LittleEndian.PutUint32(buf[4:8], 2)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Timestamp))
	binary.LittleEndian.PutUint64(buf[16:24], h.TotalUsed)
	binary.LittleEndian.PutUint32(buf[24:28], h.NumSegments)
	binary.LittleEndian.PutUint64(buf[32:40], h.RootOffset)
	binary.LittleEndian.PutUint32(buf[40:44], h.Dimension)
	binary.LittleEndian.PutUint32(buf[44:48], h.Precision)
	binary.LittleEndian.PutUint64(buf[48:56], h.RecordCount)
	binary.LittleEndian.PutUint32(buf[56:60], h.Checksum)
	return buf
}

// DecodeHeaderV2 parses a HeaderSizeV2-byte buffer.
func DecodeHeaderV2(buf []byte) (HeaderV2, error) {
	if len(buf) < HeaderSizeV2 {
		return HeaderV2{}, ErrTruncated
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != MagicV2 {
		return HeaderV2{}, ErrBadMagic
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != 2 {
		return HeaderV2{}, fmt.Errorf("%w: got %d", ErrUnsupportedVersion, version)
	}
	return HeaderV2{
		Version:     version,
		Timestamp:   int64(binary.LittleEndian.Uint64(buf[8:16])),
		TotalUsed:   binary.LittleEndian.Uint64(buf[16:24]),
		NumSegments: binary.LittleEndian.Uint32(buf[24:28]),
		RootOffset:  binary.LittleEndian.Uint64(buf[32:40]),
		Dimension:   binary.LittleEndian.Uint32(buf[40:44]),
		Precision:   binary.LittleEndian.Uint32(buf[44:48]),
		RecordCount: binary.LittleEndian.Uint64(buf[48:56]),
		Checksum:    binary.LittleEndian.Uint32(buf[56:60]),
	}, nil
}

// SegmentDescriptor describes one segment within a v2 snapshot: its full
// backing size, the number of used bytes actually written, and the byte
// offset within the snapshot file where its data begins.
type SegmentDescriptor struct {
	Size       uint64
	Used       uint64
	FileOffset uint64
}

// Encode writes d to a fresh SegmentDescriptorSize-byte buffer.
func (d SegmentDescriptor) Encode() []byte {
	buf := make([]byte, SegmentDescriptorSize)
	binary.LittleEndian.PutUint64(buf[0:8], d.Size)
	binary.LittleEndian.PutUint64(buf[8:16], d.Used)
	binary.LittleEndian.PutUint64(buf[16:24], d.FileOffset)
	return buf
}

// DecodeSegmentDescriptor parses a SegmentDescriptorSize-byte buffer.
func DecodeSegmentDescriptor(buf []byte) (SegmentDescriptor, error) {
	if len(buf) < SegmentDescriptorSize {
		return SegmentDescriptor{}, ErrTruncated
	}
	return SegmentDescriptor{
		Size:       binary.LittleEndian.Uint64(buf[0:8]),
		Used:       binary.LittleEndian.Uint64(buf[8:16]),
		FileOffset: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// Checksum computes the rolling XOR-shift checksum used by both header
// versions, over the concatenation of all used segment bytes.
func Checksum(data []byte) uint32 {
	var c uint32 = 0x9e3779b9
	for _, b := range data {
		c ^= uint32(b)
		c = (c << 5) | (c >> 27)
		c *= 0x01000193
	}
	return c
}
