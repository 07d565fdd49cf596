package nodestore

import "testing"

func TestIdentityTableRoundTrip(t *testing.T) {
	s := newTestStore(t)

	var ids []NodeID
	for i := 0; i < 5; i++ {
		id, buf, err := s.AllocateNode(48, KindLeaf)
		if err != nil {
			t.Fatalf("AllocateNode: %v", err)
		}
		copy(buf, []byte("payload"))
		ids = append(ids, id)
	}
	if err := s.SetRoot(ids[0], 3); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}

	encoded := s.EncodeIdentityTable()

	restored := New(s.arena)
	if err := restored.LoadIdentityTable(encoded); err != nil {
		t.Fatalf("LoadIdentityTable: %v", err)
	}

	rootID, rootVersion := restored.Root()
	if rootID != ids[0] || rootVersion != 3 {
		t.Fatalf("Root() = (%d, %d), want (%d, 3)", rootID, rootVersion, ids[0])
	}
	for _, id := range ids {
		kind, err := restored.GetNodeKind(id)
		if err != nil || kind != KindLeaf {
			t.Fatalf("GetNodeKind(%d) = (%v, %v), want (KindLeaf, nil)", id, kind, err)
		}
		got, err := restored.Bytes(id)
		if err != nil {
			t.Fatalf("Bytes(%d): %v", id, err)
		}
		if string(got[:7]) != "payload" {
			t.Fatalf("Bytes(%d) = %q, want prefix %q", id, got[:7], "payload")
		}
	}
}
