package book

import (
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
)

// ListInserter bulk-inserts outer indices into one side's list. Callers
// must supply indices in away-from-centre order across successive Prepare
// calls (ascending for asks, descending for bids); the order is not
// checked.
type ListInserter struct {
	reader *ListReader
	cache  []tick.OuterIndex
}

// NewListInserter constructs an inserter over side's outer-index list,
// which currently has outerIndexCount entries.
func NewListInserter(storage slot.Storage, side tick.Side, outerIndexCount uint16) *ListInserter {
	return &ListInserter{reader: NewListReader(storage, side, outerIndexCount)}
}

// Prepare stages outer for insertion and reports whether it is actually a
// new entry (true) or already present in the list (false, a no-op).
func (ins *ListInserter) Prepare(outer tick.OuterIndex) bool {
	side := ins.reader.side

	if n := len(ins.cache); n > 0 {
		last := ins.cache[n-1]
		if last == outer {
			return false
		}
		if side.CloserToCentre(outer, last) {
			ins.cache[n-1] = outer
			ins.cache = append(ins.cache, last)
			return true
		}
	}

	for {
		res, ok := ins.reader.Next()
		if !ok {
			ins.cache = append(ins.cache, outer)
			return true
		}
		if res.OuterIndex == outer {
			ins.cache = append(ins.cache, res.OuterIndex)
			return false
		}
		if side.CloserToCentre(outer, res.OuterIndex) {
			ins.cache = append(ins.cache, outer, res.OuterIndex)
			return true
		}
		ins.cache = append(ins.cache, res.OuterIndex)
	}
}

// Commit writes the staged cache back to storage. Safe to call even when
// every Prepare call returned false (a pure read-back with no logical
// change), since the slot values written are byte-identical to what was
// read and WriteIfChanged skips the store.
func (ins *ListInserter) Commit() {
	writePreparedIndices(ins.reader.storage, ins.reader.side, ins.cache, ins.reader.outerIndexCount, ins.reader.listSlot)
}

// NewLength returns the list's length after Commit: the unread prefix plus
// whatever remains staged in cache.
func (ins *ListInserter) NewLength() uint16 {
	return ins.reader.OuterIndexCount() + uint16(len(ins.cache))
}
