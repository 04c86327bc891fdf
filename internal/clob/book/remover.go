package book

import (
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
)

// ListRemover bulk-removes outer indices from arbitrary positions in one
// side's list. Callers must invoke FindOuterIndex/Remove in away-from-
// centre order across a single remover's lifetime, mirroring ListInserter;
// see spec section 9 on the single-slot "found holder".
type ListRemover struct {
	reader       *ListReader
	cache        []tick.OuterIndex
	found        *tick.OuterIndex
	pendingWrite bool
}

// NewListRemover constructs a remover over side's outer-index list, which
// currently has outerIndexCount entries.
func NewListRemover(storage slot.Storage, side tick.Side, outerIndexCount uint16) *ListRemover {
	return &ListRemover{reader: NewListReader(storage, side, outerIndexCount)}
}

func (r *ListRemover) flushFound() {
	if r.found != nil {
		r.cache = append(r.cache, *r.found)
		r.found = nil
	}
}

// FindOuterIndex scans centre-outward for outer, caching every entry it
// passes over, and reports whether outer was found.
func (r *ListRemover) FindOuterIndex(outer tick.OuterIndex) bool {
	if r.found != nil && *r.found == outer {
		return true
	}
	r.flushFound()

	for {
		res, ok := r.reader.Next()
		if !ok {
			return false
		}
		if res.OuterIndex == outer {
			found := res.OuterIndex
			r.found = &found
			return true
		}
		r.cache = append(r.cache, res.OuterIndex)
	}
}

// Remove locates outer and, if present, excises it from the list. Reports
// whether outer was found and removed.
func (r *ListRemover) Remove(outer tick.OuterIndex) bool {
	if !r.FindOuterIndex(outer) {
		return false
	}
	r.pendingWrite = true
	r.found = nil
	return true
}

// Commit writes the staged cache back to storage. A no-op if nothing was
// ever removed (only FindOuterIndex was called), matching the reference's
// "don't disturb the list unless something actually changed" behaviour.
func (r *ListRemover) Commit() {
	if !r.pendingWrite {
		return
	}
	r.flushFound()
	writePreparedIndices(r.reader.storage, r.reader.side, r.cache, r.reader.outerIndexCount, r.reader.listSlot)
}

// NewLength returns the list's length after Commit.
func (r *ListRemover) NewLength() uint16 {
	n := r.reader.OuterIndexCount() + uint16(len(r.cache))
	if r.found != nil {
		n++
	}
	return n
}
