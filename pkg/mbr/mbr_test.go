package mbr

import (
	"math"
	"testing"
)

func rect(min, max []float64) Key { return Key{Min: min, Max: max} }

func TestEmptyIsUnitElement(t *testing.T) {
	e := Empty(2)
	if !e.IsEmpty() {
		t.Fatalf("Empty(2) should report IsEmpty")
	}
	r := rect([]float64{1, 2}, []float64{3, 4})
	got, changed := e.ExpandMBR(r)
	if !changed {
		t.Fatalf("expanding empty MBR should always report changed")
	}
	if got.Min[0] != 1 || got.Max[0] != 3 || got.Min[1] != 2 || got.Max[1] != 4 {
		t.Fatalf("expand into empty MBR should equal the other rectangle, got %+v", got)
	}
}

func TestExpandPoint(t *testing.T) {
	k := rect([]float64{0, 0}, []float64{1, 1})
	got, changed := k.ExpandPoint([]float64{2, -1})
	if !changed {
		t.Fatalf("expected change")
	}
	if got.Max[0] != 2 || got.Min[1] != -1 {
		t.Fatalf("got %+v", got)
	}
	_, changed = got.ExpandPoint([]float64{0.5, 0.5})
	if changed {
		t.Fatalf("expanding with an interior point should not change bounds")
	}
}

func TestIntersectsAndContains(t *testing.T) {
	a := rect([]float64{0, 0}, []float64{10, 10})
	b := rect([]float64{5, 5}, []float64{15, 15})
	c := rect([]float64{20, 20}, []float64{30, 30})
	d := rect([]float64{1, 1}, []float64{2, 2})

	if !a.Intersects(b) {
		t.Fatalf("a and b should intersect")
	}
	if a.Intersects(c) {
		t.Fatalf("a and c should not intersect")
	}
	if !a.Contains(d) {
		t.Fatalf("a should contain d")
	}
	if a.Contains(b) {
		t.Fatalf("a should not contain b")
	}
}

func TestAreaMarginOverlap(t *testing.T) {
	a := rect([]float64{0, 0}, []float64{10, 5})
	if a.Area() != 50 {
		t.Fatalf("Area = %v, want 50", a.Area())
	}
	if a.Margin() != 15 {
		t.Fatalf("Margin = %v, want 15", a.Margin())
	}

	b := rect([]float64{5, 2}, []float64{15, 8})
	if got := a.OverlapArea(b); got != 15 {
		t.Fatalf("OverlapArea = %v, want 15", got)
	}

	c := rect([]float64{20, 20}, []float64{30, 30})
	if got := a.OverlapArea(c); got != 0 {
		t.Fatalf("OverlapArea (disjoint) = %v, want 0", got)
	}
}

func TestAreaEnlargement(t *testing.T) {
	a := rect([]float64{0, 0}, []float64{10, 10})
	b := rect([]float64{5, 5}, []float64{20, 20})
	enl := a.AreaEnlargement(b)
	union, _ := a.ExpandMBR(b)
	if enl != union.Area()-a.Area() {
		t.Fatalf("AreaEnlargement mismatch: %v", enl)
	}

	within := rect([]float64{2, 2}, []float64{8, 8})
	if got := a.AreaEnlargement(within); got != 0 {
		t.Fatalf("AreaEnlargement for a contained rectangle should be 0, got %v", got)
	}
}

func TestOverlapEnlargementAgainst(t *testing.T) {
	a := rect([]float64{0, 0}, []float64{5, 5})
	candidate := rect([]float64{4, 4}, []float64{10, 10})
	sibling := rect([]float64{6, 6}, []float64{12, 12})

	got := a.OverlapEnlargementAgainst(candidate, []Key{sibling})
	if got <= 0 {
		t.Fatalf("expected positive overlap enlargement, got %v", got)
	}
}

func TestEncodedSizeRoundsUpToByte(t *testing.T) {
	if got := EncodedSize(3, 32); got != 2*3*4 {
		t.Fatalf("EncodedSize(3,32) = %d, want %d", got, 2*3*4)
	}
	if got := EncodedSize(2, 33); got != 2*2*5 {
		t.Fatalf("EncodedSize(2,33) = %d, want %d", got, 2*2*5)
	}
}

func TestPutGetBoundRoundTripAtFullPrecision(t *testing.T) {
	buf := make([]byte, 8)
	for _, v := range []float64{0, -1, 1, math.Inf(1), math.Inf(-1), 3.25} {
		n := PutBound(buf, v, 64)
		if n != 8 {
			t.Fatalf("PutBound at precision 64 wrote %d bytes, want 8", n)
		}
		got, used := GetBound(buf, 64)
		if used != 8 || got != v {
			t.Fatalf("round trip mismatch for %v: got %v (used %d)", v, got, used)
		}
	}
}

func TestPutGetBoundLowerPrecisionIsLossyButOrdered(t *testing.T) {
	values := []float64{-100, -1, 0, 1, 2.5, 100}
	bufs := make([][]byte, len(values))
	for i, v := range values {
		bufs[i] = make([]byte, 4)
		if n := PutBound(bufs[i], v, 32); n != 4 {
			t.Fatalf("PutBound at precision 32 wrote %d bytes, want 4", n)
		}
	}
	for i := 1; i < len(values); i++ {
		a, _ := GetBound(bufs[i-1], 32)
		b, _ := GetBound(bufs[i], 32)
		if a > b {
			t.Fatalf("decoded order violated: %v (from %v) > %v (from %v)", a, values[i-1], b, values[i])
		}
	}
}
