// pkg/xtreedb/errors.go
//
// Error taxonomy for the index façade (§7), matched exactly to the spec's
// categories. Every sentinel is wrapped with context via fmt.Errorf and
// unwrapped by callers with errors.Is, following the teacher's style.
package xtreedb

import "errors"

var (
	// ErrInvalidInput covers a NaN coordinate, a dimension mismatch
	// against the index's configured dimensionality, or an empty row
	// identifier. Rejected before any state mutation.
	ErrInvalidInput = errors.New("xtreedb: invalid input")

	// ErrArenaExhausted surfaces arena.ErrArenaExhausted at the façade:
	// the segment cap was reached. The tree is left unchanged; the caller
	// may retry against a fresh index with higher limits.
	ErrArenaExhausted = errors.New("xtreedb: arena exhausted")

	// ErrSnapshotCorrupt covers a checksum mismatch, unknown magic, or a
	// truncated snapshot file. Fatal for recovery of that file.
	ErrSnapshotCorrupt = errors.New("xtreedb: snapshot corrupt")

	// ErrSnapshotIO is a transient I/O failure during a background save.
	// Logged; the previous snapshot remains valid and operations continue.
	ErrSnapshotIO = errors.New("xtreedb: snapshot io failure")

	// ErrDurableCommitFailed is a write or fsync error during Commit. The
	// engine is poisoned: subsequent writes return this error until Close.
	ErrDurableCommitFailed = errors.New("xtreedb: durable commit failed")

	// ErrNotFound is returned when a NodeID asked of the store has no
	// live mapping (a stale reference, typically after a bad recovery).
	ErrNotFound = errors.New("xtreedb: node not found")

	// ErrConcurrentViolation marks a programming error: a second writer
	// tried to enter the engine without holding the write lock.
	ErrConcurrentViolation = errors.New("xtreedb: concurrent write violation")

	// ErrClosed is returned by any operation performed after Close.
	ErrClosed = errors.New("xtreedb: index is closed")
)
