// pkg/mbr/mbr.go
//
// Package mbr implements the minimum bounding rectangle key used throughout
// the X-tree: every node and data record carries one, and the insertion and
// query algorithms are built entirely out of the operations defined here.
package mbr

import (
	"math"

	"xtreedb/internal/ordfloat"
)

// Key is a d-dimensional rectangle with plain float64 bounds. The
// ordered-float encoding, under which byte-wise comparison agrees with
// numeric comparison, is applied only when a bound is written with
// PutBound. The zero value is not a valid Key; use Empty to construct the unit
// element under expansion.
type Key struct {
	Min []float64
	Max []float64
}

// Empty returns the empty MBR sentinel for d dimensions: min_i = +Inf,
// max_i = -Inf. Expanding anything into an empty MBR yields that thing's
// own bounds.
func Empty(d int) Key {
	min := make([]float64, d)
	max := make([]float64, d)
	for i := 0; i < d; i++ {
		min[i] = math.Inf(1)
		max[i] = math.Inf(-1)
	}
	return Key{Min: min, Max: max}
}

// IsEmpty reports whether k is the empty sentinel in every dimension.
func (k Key) IsEmpty() bool {
	for i := range k.Min {
		if !math.IsInf(k.Min[i], 1) || !math.IsInf(k.Max[i], -1) {
			return false
		}
	}
	return true
}

// Dim returns the number of dimensions of k.
func (k Key) Dim() int { return len(k.Min) }

// Clone returns a deep copy of k.
func (k Key) Clone() Key {
	min := make([]float64, len(k.Min))
	max := make([]float64, len(k.Max))
	copy(min, k.Min)
	copy(max, k.Max)
	return Key{Min: min, Max: max}
}

// ExpandPoint returns a copy of k grown to cover point p, and whether any
// bound actually moved. k itself is not modified.
func (k Key) ExpandPoint(p []float64) (Key, bool) {
	out := k.Clone()
	changed := false
	for i, v := range p {
		if v < out.Min[i] {
			out.Min[i] = v
			changed = true
		}
		if v > out.Max[i] {
			out.Max[i] = v
			changed = true
		}
	}
	return out, changed
}

// ExpandMBR returns a copy of k grown to cover other, and whether any
// bound actually moved. k itself is not modified.
func (k Key) ExpandMBR(other Key) (Key, bool) {
	out := k.Clone()
	changed := false
	for i := range out.Min {
		if other.Min[i] < out.Min[i] {
			out.Min[i] = other.Min[i]
			changed = true
		}
		if other.Max[i] > out.Max[i] {
			out.Max[i] = other.Max[i]
			changed = true
		}
	}
	return out, changed
}

// Intersects reports whether k and other share at least one point:
// ∀i: k.min_i ≤ other.max_i ∧ other.min_i ≤ k.max_i.
func (k Key) Intersects(other Key) bool {
	if len(k.Min) == 2 {
		return k.Min[0] <= other.Max[0] && other.Min[0] <= k.Max[0] &&
			k.Min[1] <= other.Max[1] && other.Min[1] <= k.Max[1]
	}
	for i := range k.Min {
		if k.Min[i] > other.Max[i] || other.Min[i] > k.Max[i] {
			return false
		}
	}
	return true
}

// Contains reports whether other is fully inside k.
func (k Key) Contains(other Key) bool {
	for i := range k.Min {
		if other.Min[i] < k.Min[i] || other.Max[i] > k.Max[i] {
			return false
		}
	}
	return true
}

// Area returns the product of (max_i - min_i) across dimensions.
func (k Key) Area() float64 {
	area := 1.0
	for i := range k.Min {
		area *= k.Max[i] - k.Min[i]
	}
	return area
}

// Margin returns the sum of (max_i - min_i) across dimensions.
func (k Key) Margin() float64 {
	var margin float64
	for i := range k.Min {
		margin += k.Max[i] - k.Min[i]
	}
	return margin
}

// OverlapArea returns the product of max(0, min(k.max_i,other.max_i) -
// max(k.min_i,other.min_i)) over dimensions.
func (k Key) OverlapArea(other Key) float64 {
	overlap := 1.0
	for i := range k.Min {
		lo := math.Max(k.Min[i], other.Min[i])
		hi := math.Min(k.Max[i], other.Max[i])
		d := hi - lo
		if d < 0 {
			return 0
		}
		overlap *= d
	}
	return overlap
}

// PercentOverlap returns OverlapArea(other) / min(Area(k), Area(other)).
func (k Key) PercentOverlap(other Key) float64 {
	minArea := math.Min(k.Area(), other.Area())
	if minArea == 0 {
		return 0
	}
	return k.OverlapArea(other) / minArea
}

// AreaEnlargement returns the area increase of k after expanding to cover
// other: area(k ∪ other) - area(k).
func (k Key) AreaEnlargement(other Key) float64 {
	union, _ := k.ExpandMBR(other)
	return union.Area() - k.Area()
}

// OverlapEnlargementAgainst returns how much k's total overlap with the
// given sibling keys would grow if k were expanded to cover candidate.
func (k Key) OverlapEnlargementAgainst(candidate Key, siblings []Key) float64 {
	expanded, _ := k.ExpandMBR(candidate)
	var before, after float64
	for _, s := range siblings {
		before += k.OverlapArea(s)
		after += expanded.OverlapArea(s)
	}
	return after - before
}

// wordWidth is the byte width of one ordered-float bound word for the
// configured precision, rounded up to a whole byte per §3 (⌈p/8⌉*8 bits).
func wordWidth(precisionBits int) int {
	return (precisionBits + 7) / 8
}

// EncodedSize returns the wire size in bytes of a d-dimensional MBR at the
// given precision: 2*d bound words.
func EncodedSize(dim, precisionBits int) int {
	return 2 * dim * wordWidth(precisionBits)
}

// PutBound writes v's ordered-float encoding into buf, truncated to the
// most significant wordWidth(precisionBits) bytes and stored big-endian so
// that byte-wise comparison of the encoded form agrees with numeric
// comparison (§3). Lower precision discards low-order bits of the ordered
// encoding, trading resolution for wire size. Returns the number of bytes
// written.
func PutBound(buf []byte, v float64, precisionBits int) int {
	width := wordWidth(precisionBits)
	u := ordfloat.Encode(v) >> uint(64-width*8)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte(u)
		u >>= 8
	}
	return width
}

// GetBound reverses PutBound, reading wordWidth(precisionBits) big-endian
// bytes from buf and reconstructing the float (with the bits PutBound
// discarded read back as zero). Returns the bound and the number of bytes
// consumed.
func GetBound(buf []byte, precisionBits int) (float64, int) {
	width := wordWidth(precisionBits)
	var u uint64
	for i := 0; i < width; i++ {
		u = u<<8 | uint64(buf[i])
	}
	u <<= uint(64 - width*8)
	return ordfloat.Decode(u), width
}
