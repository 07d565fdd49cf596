package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"xtreedb/pkg/arena"
)

type fakeSource struct {
	segments [][]byte
	used     []int64
}

func (f *fakeSource) SegmentCount() int         { return len(f.segments) }
func (f *fakeSource) SegmentData(i int) []byte  { return f.segments[i][:f.used[i]] }
func (f *fakeSource) SegmentUsed(i int) int64   { return f.used[i] }
func (f *fakeSource) UsedBytes() int64 {
	var total int64
	for _, u := range f.used {
		total += u
	}
	return total
}

func TestSaveLoadRoundTripV1(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")

	payload := []byte("single segment contents")
	src := &fakeSource{segments: [][]byte{payload}, used: []int64{int64(len(payload))}}

	mgr := New(path, 2, 32, src, nil, Triggers{})
	mgr.SetRoot(0x1234, 7)
	if err := mgr.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Dimension != 2 || loaded.Precision != 32 || loaded.RecordCount != 7 || loaded.RootOffset != 0x1234 {
		t.Fatalf("unexpected header fields: %+v", loaded)
	}
	if string(loaded.Segments[0]) != string(payload) {
		t.Fatalf("segment mismatch: got %q", loaded.Segments[0])
	}
}

func TestSaveLoadRoundTripV2(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")

	a := []byte("segment zero data")
	b := []byte("segment one has more data in it")
	src := &fakeSource{
		segments: [][]byte{a, b},
		used:     []int64{int64(len(a)), int64(len(b))},
	}

	mgr := New(path, 3, 32, src, nil, Triggers{})
	mgr.SetRoot(99, 2)
	if err := mgr.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(loaded.Segments))
	}
	if string(loaded.Segments[0]) != string(a) || string(loaded.Segments[1]) != string(b) {
		t.Fatalf("segment contents mismatch: %q / %q", loaded.Segments[0], loaded.Segments[1])
	}
}

func TestLoadRejectsCorruptChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")

	payload := []byte("data")
	src := &fakeSource{segments: [][]byte{payload}, used: []int64{int64(len(payload))}}
	mgr := New(path, 1, 32, src, nil, Triggers{})
	if err := mgr.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("rewriting snapshot: %v", err)
	}

	if _, err := Load(path); err != ErrChecksumMismatch {
		t.Fatalf("Load after corruption = %v, want ErrChecksumMismatch", err)
	}
}

func TestRestoreIntoAppendsAfterRecoverySegments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")

	a := []byte("aaaa aaaa")
	b := []byte("bbbb bbbb bbbb")
	src := &fakeSource{
		segments: [][]byte{a, b},
		used:     []int64{int64(len(a)), int64(len(b))},
	}
	mgr := New(path, 2, 32, src, nil, Triggers{})
	if err := mgr.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	dst := arena.NewForRecovery(arena.Options{Mode: arena.ModeMemory})
	loaded.RestoreInto(dst)

	if dst.SegmentCount() != 2 {
		t.Fatalf("SegmentCount = %d, want 2", dst.SegmentCount())
	}
	off, err := dst.Allocate(8)
	if err != nil {
		t.Fatalf("Allocate after recovery: %v", err)
	}
	if off.Segment() != 1 {
		t.Fatalf("expected new allocation to land in segment 1 (after recovered segments), got %d", off.Segment())
	}
}

