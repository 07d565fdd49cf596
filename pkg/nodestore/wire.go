// pkg/nodestore/wire.go
//
// Wire encoding for nodes and data records (§4.4 "Node wire format"). Every
// MBR bound is stored as a big-endian ordered-float word, truncated to the
// index's configured precision (§3 "⌈p/8⌉*8 bits"), so that byte-wise
// comparison of the encoded form agrees with numeric comparison. Data-record
// point coordinates are stored separately as raw IEEE-754 doubles (§4.4
// "Data records encode ... raw doubles"): precision only bounds MBR keys.
package nodestore

import (
	"encoding/binary"
	"fmt"
	"math"

	"xtreedb/internal/encoding"
	"xtreedb/pkg/mbr"
)

// sizeClasses are the pre-defined allocation buckets a node's encoded size
// is rounded up into; a node whose encoded size outgrows its current class
// triggers Reallocate.
var sizeClasses = []int{64, 128, 256, 512, 1024, 2048}

// SizeClassFor returns the smallest size class that fits n bytes, or n
// itself rounded up to the next multiple of the largest class if it
// exceeds every predefined class (supernodes can be considerably larger).
func SizeClassFor(n int) int {
	for _, c := range sizeClasses {
		if n <= c {
			return c
		}
	}
	last := sizeClasses[len(sizeClasses)-1]
	return ((n + last - 1) / last) * last
}

func putMBR(buf []byte, key mbr.Key, precisionBits int) int {
	off := 0
	for i := range key.Min {
		off += mbr.PutBound(buf[off:], key.Min[i], precisionBits)
		off += mbr.PutBound(buf[off:], key.Max[i], precisionBits)
	}
	return off
}

func getMBR(buf []byte, dim, precisionBits int) (mbr.Key, int) {
	min := make([]float64, dim)
	max := make([]float64, dim)
	off := 0
	for i := 0; i < dim; i++ {
		v, n := mbr.GetBound(buf[off:], precisionBits)
		min[i] = v
		off += n
		v, n = mbr.GetBound(buf[off:], precisionBits)
		max[i] = v
		off += n
	}
	return mbr.Key{Min: min, Max: max}, off
}

// putRawDouble writes v as its literal IEEE-754 bit pattern, big-endian,
// unaffected by the index's MBR precision (§4.4 "raw doubles").
func putRawDouble(buf []byte, v float64) {
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
}

func getRawDouble(buf []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}

// ChildEntry is one (child reference, child MBR, is-leaf) triple within an
// interior node's wire encoding.
type ChildEntry struct {
	Child  NodeID
	Bounds mbr.Key
	IsLeaf bool
}

// BucketWire is the decoded form of one node's wire-encoded bytes.
type BucketWire struct {
	IsLeaf      bool
	IsSupernode bool
	Bounds      mbr.Key
	Children    []ChildEntry
}

// EncodedSize returns the exact wire size of w for the given dimension and
// MBR precision.
func (w *BucketWire) EncodedSize(dim, precisionBits int) int {
	header := 4
	mbrSize := mbr.EncodedSize(dim, precisionBits)
	childSize := 8 + mbr.EncodedSize(dim, precisionBits) + 1
	return header + mbrSize + len(w.Children)*childSize
}

// Encode serializes w: header (n_children uint16, is_leaf byte, is_supernode
// byte) + bucket MBR + per-child (NodeID uint64, child MBR, is_leaf byte).
func (w *BucketWire) Encode(dim, precisionBits int) []byte {
	buf := make([]byte, w.EncodedSize(dim, precisionBits))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(w.Children)))
	if w.IsLeaf {
		buf[2] = 1
	}
	if w.IsSupernode {
		buf[3] = 1
	}
	off := 4
	off += putMBR(buf[off:], w.Bounds, precisionBits)
	for _, c := range w.Children {
		binary.LittleEndian.PutUint64(buf[off:], uint64(c.Child))
		off += 8
		off += putMBR(buf[off:], c.Bounds, precisionBits)
		if c.IsLeaf {
			buf[off] = 1
		}
		off++
	}
	return buf
}

// DecodeBucketWire parses a node record encoded by Encode.
func DecodeBucketWire(buf []byte, dim, precisionBits int) (*BucketWire, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("nodestore: bucket record truncated (%d bytes)", len(buf))
	}
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	w := &BucketWire{IsLeaf: buf[2] == 1, IsSupernode: buf[3] == 1}
	off := 4
	bounds, used := getMBR(buf[off:], dim, precisionBits)
	w.Bounds = bounds
	off += used

	w.Children = make([]ChildEntry, n)
	for i := 0; i < n; i++ {
		if off+8 > len(buf) {
			return nil, fmt.Errorf("nodestore: bucket record truncated at child %d", i)
		}
		child := NodeID(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
		childBounds, used := getMBR(buf[off:], dim, precisionBits)
		off += used
		isLeaf := buf[off] == 1
		off++
		w.Children[i] = ChildEntry{Child: child, Bounds: childBounds, IsLeaf: isLeaf}
	}
	return w, nil
}

// RecordWire is the decoded form of one data record's wire-encoded bytes.
type RecordWire struct {
	Bounds mbr.Key
	RowID  []byte
	Points [][]float64
}

// EncodedSize returns the exact wire size of r for the given dimension and
// MBR precision. Point coordinates are always 8-byte raw doubles,
// independent of precisionBits.
func (r *RecordWire) EncodedSize(dim, precisionBits int) int {
	mbrSize := mbr.EncodedSize(dim, precisionBits)
	rowIDSize := encoding.VarintLen(uint64(len(r.RowID))) + len(r.RowID)
	pointCountSize := encoding.VarintLen(uint64(len(r.Points)))
	pointsSize := len(r.Points) * dim * 8
	return mbrSize + rowIDSize + pointCountSize + pointsSize
}

// Encode serializes r: MBR (at the configured precision) + length-prefixed
// row id + point count + raw float64 coordinates (§4.4).
func (r *RecordWire) Encode(dim, precisionBits int) []byte {
	buf := make([]byte, r.EncodedSize(dim, precisionBits))
	off := putMBR(buf, r.Bounds, precisionBits)

	n := encoding.PutVarint(buf[off:], uint64(len(r.RowID)))
	off += n
	off += copy(buf[off:], r.RowID)

	n = encoding.PutVarint(buf[off:], uint64(len(r.Points)))
	off += n

	for _, p := range r.Points {
		for _, v := range p {
			putRawDouble(buf[off:], v)
			off += 8
		}
	}
	return buf
}

// DecodeRecordWire parses a data record encoded by Encode.
func DecodeRecordWire(buf []byte, dim, precisionBits int) (*RecordWire, error) {
	bounds, off := getMBR(buf, dim, precisionBits)
	if off > len(buf) {
		return nil, fmt.Errorf("nodestore: record truncated reading MBR")
	}

	rowIDLen, n := encoding.GetVarint(buf[off:])
	off += n
	if off+int(rowIDLen) > len(buf) {
		return nil, fmt.Errorf("nodestore: record truncated reading row id")
	}
	rowID := make([]byte, rowIDLen)
	copy(rowID, buf[off:off+int(rowIDLen)])
	off += int(rowIDLen)

	pointCount, n := encoding.GetVarint(buf[off:])
	off += n

	points := make([][]float64, pointCount)
	for i := range points {
		p := make([]float64, dim)
		for j := 0; j < dim; j++ {
			if off+8 > len(buf) {
				return nil, fmt.Errorf("nodestore: record truncated reading point %d", i)
			}
			p[j] = getRawDouble(buf[off:])
			off += 8
		}
		points[i] = p
	}

	return &RecordWire{Bounds: bounds, RowID: rowID, Points: points}, nil
}
