// Package book implements L3/L4: the outer-index list reader, inserter,
// lookup-remover, and sequential remover (spec section 4.1-4.4), the
// bitmap-group traversal and mutation helpers (section 4.5-4.6), and the
// Book composite that stages writes for a single place/cancel/match
// operation and commits them under the write-skipping discipline of
// invariant I6 (section 4.7).
package book

import (
	"github.com/goblinclob/engine/internal/clob/codec"
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
)

// ListReader walks one side's outer-index list from the centre outward,
// loading at most one ListSlot per 16 elements. It is the read-only
// primitive every other book component is built on.
type ListReader struct {
	storage         slot.Storage
	side            tick.Side
	outerIndexCount uint16
	listSlot        *codec.ListSlot
	cachedSlotIndex uint16
}

// NewListReader constructs a reader positioned at the centre-most end of
// side's outer-index list, which currently has outerIndexCount entries.
func NewListReader(storage slot.Storage, side tick.Side, outerIndexCount uint16) *ListReader {
	return &ListReader{storage: storage, side: side, outerIndexCount: outerIndexCount}
}

// OuterIndexCount returns the number of entries not yet consumed by Next.
func (r *ListReader) OuterIndexCount() uint16 { return r.outerIndexCount }

// ListReaderResult is one step of a ListReader walk.
type ListReaderResult struct {
	SlotIndex     uint16
	RelativeIndex uint16
	ListSlot      codec.ListSlot
	OuterIndex    tick.OuterIndex
}

// Next returns the next outer index moving from the centre of the book
// outward, or ok=false once the list is exhausted.
func (r *ListReader) Next() (ListReaderResult, bool) {
	if r.outerIndexCount == 0 {
		return ListReaderResult{}, false
	}

	slotIndex := (r.outerIndexCount - 1) / codec.ListSlotWidth
	relativeIndex := (r.outerIndexCount - 1) % codec.ListSlotWidth

	if r.listSlot == nil || relativeIndex == codec.ListSlotWidth-1 {
		ls := codec.DecodeListSlot(r.storage.SLoad(slot.ListKey(uint8(r.side), slotIndex)))
		r.listSlot = &ls
		r.cachedSlotIndex = slotIndex
	}

	outer := tick.OuterIndex(r.listSlot.Get(int(relativeIndex)))
	result := ListReaderResult{
		SlotIndex:     slotIndex,
		RelativeIndex: relativeIndex,
		ListSlot:      *r.listSlot,
		OuterIndex:    outer,
	}
	r.outerIndexCount--
	return result, true
}
