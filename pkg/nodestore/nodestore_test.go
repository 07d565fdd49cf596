package nodestore

import (
	"testing"

	"xtreedb/pkg/arena"
	"xtreedb/pkg/mbr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	a, err := arena.New(arena.Options{Mode: arena.ModeMemory, GrowthHint: 256})
	if err != nil {
		t.Fatalf("arena.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return New(a)
}

func TestAllocateAndReadBack(t *testing.T) {
	s := newTestStore(t)
	w := &BucketWire{
		IsLeaf: true,
		Bounds: mbr.Key{Min: []float64{0, 0}, Max: []float64{1, 1}},
		Children: []ChildEntry{
			{Child: 42, Bounds: mbr.Key{Min: []float64{0, 0}, Max: []float64{1, 1}}, IsLeaf: true},
		},
	}
	encoded := w.Encode(2, 64)

	id, buf, err := s.AllocateNode(len(encoded), KindLeaf)
	if err != nil {
		t.Fatalf("AllocateNode: %v", err)
	}
	copy(buf, encoded)

	got, err := s.Bytes(id)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	decoded, err := DecodeBucketWire(got[:len(encoded)], 2, 64)
	if err != nil {
		t.Fatalf("DecodeBucketWire: %v", err)
	}
	if !decoded.IsLeaf || len(decoded.Children) != 1 || decoded.Children[0].Child != 42 {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
}

func TestGetNodeKindUnknown(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetNodeKind(999); err != ErrUnknownNode {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
}

func TestReallocatePreservesIdentityAndBytes(t *testing.T) {
	s := newTestStore(t)
	id, buf, err := s.AllocateNode(32, KindInterior)
	if err != nil {
		t.Fatalf("AllocateNode: %v", err)
	}
	copy(buf, []byte("original contents here"))

	newBuf, err := s.Reallocate(id, 200)
	if err != nil {
		t.Fatalf("Reallocate: %v", err)
	}
	if string(newBuf[:len("original contents here")]) != "original contents here" {
		t.Fatalf("reallocated buffer lost contents: %q", newBuf[:30])
	}

	kind, err := s.GetNodeKind(id)
	if err != nil || kind != KindInterior {
		t.Fatalf("GetNodeKind after reallocate: %v, %v", kind, err)
	}
}

func TestSetRootRequiresMonotonicVersion(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetRoot(1, 5); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}
	if err := s.SetRoot(2, 5); err == nil {
		t.Fatalf("expected error republishing the same version")
	}
	if err := s.SetRoot(2, 6); err != nil {
		t.Fatalf("SetRoot with greater version: %v", err)
	}
	id, version := s.Root()
	if id != 2 || version != 6 {
		t.Fatalf("Root() = (%d, %d), want (2, 6)", id, version)
	}
}

func TestCommitAdvancesEpoch(t *testing.T) {
	s := newTestStore(t)
	e1, err := s.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	e2, err := s.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if e2 <= e1 {
		t.Fatalf("expected strictly increasing epochs, got %d then %d", e1, e2)
	}
}

func TestSizeClassFor(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{1, 64},
		{64, 64},
		{65, 128},
		{2048, 2048},
		{2049, 4096},
	}
	for _, c := range cases {
		if got := SizeClassFor(c.n); got != c.want {
			t.Errorf("SizeClassFor(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestRecordWireRoundTrip(t *testing.T) {
	r := &RecordWire{
		Bounds: mbr.Key{Min: []float64{1, 2}, Max: []float64{3, 4}},
		RowID:  []byte("row-001"),
		Points: [][]float64{{1, 2}, {3, 4}},
	}
	encoded := r.Encode(2, 64)
	decoded, err := DecodeRecordWire(encoded, 2, 64)
	if err != nil {
		t.Fatalf("DecodeRecordWire: %v", err)
	}
	if string(decoded.RowID) != "row-001" || len(decoded.Points) != 2 {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
	if decoded.Bounds.Min[0] != 1 || decoded.Bounds.Max[1] != 4 {
		t.Fatalf("unexpected bounds: %+v", decoded.Bounds)
	}
	if decoded.Points[0][0] != 1 || decoded.Points[1][1] != 4 {
		t.Fatalf("unexpected points: %+v", decoded.Points)
	}
}

func TestRecordWirePointsSurviveLowMBRPrecision(t *testing.T) {
	r := &RecordWire{
		Bounds: mbr.Key{Min: []float64{1.0000001, 2}, Max: []float64{3, 4}},
		RowID:  []byte("row-002"),
		Points: [][]float64{{1.0000001, 2}},
	}
	encoded := r.Encode(2, 32)
	decoded, err := DecodeRecordWire(encoded, 2, 32)
	if err != nil {
		t.Fatalf("DecodeRecordWire: %v", err)
	}
	// Point coordinates are raw doubles: exact regardless of MBR precision.
	if decoded.Points[0][0] != 1.0000001 {
		t.Fatalf("point coordinate should survive low MBR precision exactly, got %v", decoded.Points[0][0])
	}
	// The bound itself may have lost precision in the truncation.
	if decoded.Bounds.Min[0] > 1.0000001 {
		t.Fatalf("truncated bound should never grow past the true value, got %v", decoded.Bounds.Min[0])
	}
}

func TestBucketWireEncodedSizeScalesWithPrecision(t *testing.T) {
	w := &BucketWire{Bounds: mbr.Key{Min: []float64{0, 0}, Max: []float64{1, 1}}}
	if got, want := w.EncodedSize(2, 32), 4+2*2*4; got != want {
		t.Fatalf("EncodedSize(2,32) = %d, want %d", got, want)
	}
	if got, want := w.EncodedSize(2, 64), 4+2*2*8; got != want {
		t.Fatalf("EncodedSize(2,64) = %d, want %d", got, want)
	}
}
