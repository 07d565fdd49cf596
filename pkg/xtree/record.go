// pkg/xtree/record.go
package xtree

import "xtreedb/pkg/mbr"

// DataRecord is a value inserted by the caller: a stable row identifier,
// one or more k-dimensional points (every point expands the record's
// MBR), and the record's MBR (§3 "Data record"). Records are logically
// leaves; this subsystem has no delete operation.
type DataRecord struct {
	RowID  []byte
	Points [][]float64
	Bounds mbr.Key
}

// NewDataRecord builds a record whose MBR is the union of the given
// points.
func NewDataRecord(rowID []byte, dim int, points [][]float64) DataRecord {
	bounds := mbr.Empty(dim)
	for _, p := range points {
		bounds, _ = bounds.ExpandPoint(p)
	}
	cp := make([]byte, len(rowID))
	copy(cp, rowID)
	return DataRecord{RowID: cp, Points: points, Bounds: bounds}
}
