// pkg/nodestore/persist.go
//
// Persists the NodeID identity table itself, as a sidecar to the raw arena
// bytes: a snapshot of the arena's pages alone cannot reconstruct
// records map[NodeID]record, since that table is an in-process structure
// over logical offsets, not part of any node's encoded bytes. Durable mode
// writes this file on every Commit; Mmap mode writes it every OpsThreshold
// inserts. Both modes also write it on Close, so recovery never needs a
// full tree walk.
package nodestore

import (
	"fmt"

	"xtreedb/internal/encoding"
	"xtreedb/pkg/arena"
)

// EncodeIdentityTable serializes every live NodeID -> (offset, sizeClass,
// kind) entry plus the current root, in teacher-style varint-length fields.
func (s *Store) EncodeIdentityTable() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := make([]byte, 0, 32+len(s.records)*24)
	var tmp [10]byte

	n := encoding.PutVarint(tmp[:], s.nextID)
	buf = append(buf, tmp[:n]...)
	n = encoding.PutVarint(tmp[:], uint64(s.rootID))
	buf = append(buf, tmp[:n]...)
	n = encoding.PutVarint(tmp[:], s.rootVersion)
	buf = append(buf, tmp[:n]...)
	n = encoding.PutVarint(tmp[:], uint64(len(s.records)))
	buf = append(buf, tmp[:n]...)

	for id, rec := range s.records {
		n = encoding.PutVarint(tmp[:], uint64(id))
		buf = append(buf, tmp[:n]...)
		n = encoding.PutVarint(tmp[:], uint64(rec.offset))
		buf = append(buf, tmp[:n]...)
		n = encoding.PutVarint(tmp[:], uint64(rec.sizeClass))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, byte(rec.kind))
	}
	return buf
}

// LoadIdentityTable replaces s's identity table with the contents encoded
// by EncodeIdentityTable, and republishes the embedded root. The backing
// arena must already have its segments restored (e.g. via
// snapshot.Loaded.RestoreInto) before this is called.
func (s *Store) LoadIdentityTable(buf []byte) error {
	nextID, off := encoding.GetVarint(buf)
	if off == 0 {
		return fmt.Errorf("nodestore: identity table: truncated header")
	}
	buf = buf[off:]

	rootID, n := encoding.GetVarint(buf)
	buf = buf[n:]
	rootVersion, n := encoding.GetVarint(buf)
	buf = buf[n:]
	count, n := encoding.GetVarint(buf)
	buf = buf[n:]

	records := make(map[NodeID]record, count)
	for i := uint64(0); i < count; i++ {
		id, n := encoding.GetVarint(buf)
		buf = buf[n:]
		offset, n := encoding.GetVarint(buf)
		buf = buf[n:]
		sizeClass, n := encoding.GetVarint(buf)
		buf = buf[n:]
		if len(buf) < 1 {
			return fmt.Errorf("nodestore: identity table: truncated entry %d", i)
		}
		kind := Kind(buf[0])
		buf = buf[1:]

		records[NodeID(id)] = record{offset: arena.Offset(offset), sizeClass: int(sizeClass), kind: kind}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = nextID
	s.rootID = NodeID(rootID)
	s.rootVersion = rootVersion
	s.records = records
	return nil
}
