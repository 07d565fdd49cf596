package pagetrack

import "testing"

func TestRecordWriteFlipsHotFlag(t *testing.T) {
	tr := New(Options{HotThreshold: 3})
	id := PageID{Segment: 0, Page: 5}

	for i := int64(0); i < 2; i++ {
		tr.RecordWrite(id, i)
	}
	if hot := tr.HotPages(); len(hot) != 0 {
		t.Fatalf("expected no hot pages yet, got %v", hot)
	}

	tr.RecordWrite(id, 2)
	hot := tr.HotPages()
	if len(hot) != 1 || hot[0].ID != id {
		t.Fatalf("expected page %v to be hot, got %v", id, hot)
	}
}

func TestRecordAccessDoesNotAffectHot(t *testing.T) {
	tr := New(Options{HotThreshold: 1})
	id := PageID{Segment: 1, Page: 9}
	tr.RecordAccess(id)
	if hot := tr.HotPages(); len(hot) != 0 {
		t.Fatalf("access alone should not mark a page hot, got %v", hot)
	}
}

func TestResetClearsHotFlags(t *testing.T) {
	tr := New(Options{HotThreshold: 1})
	id := PageID{Segment: 2, Page: 1}
	tr.RecordWrite(id, 0)
	if len(tr.HotPages()) != 1 {
		t.Fatalf("expected page to be hot before reset")
	}
	tr.Reset()
	if len(tr.HotPages()) != 0 {
		t.Fatalf("expected no hot pages after reset")
	}
}

func TestDistinctPagesTrackedIndependently(t *testing.T) {
	tr := New(Options{HotThreshold: 2})
	a := PageID{Segment: 0, Page: 1}
	b := PageID{Segment: 0, Page: 2}

	tr.RecordWrite(a, 0)
	tr.RecordWrite(a, 1)
	tr.RecordWrite(b, 0)

	hot := tr.HotPages()
	if len(hot) != 1 || hot[0].ID != a {
		t.Fatalf("expected only page a hot, got %v", hot)
	}
}
