package book

import (
	"github.com/goblinclob/engine/internal/clob/codec"
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
)

// writePreparedIndices is the shared commit algorithm for both the
// inserter (section 4.2) and the lookup-remover (section 4.3): it writes
// cache back to consecutive ListSlots starting at position unreadCount,
// draining cache from its end (farthest-from-centre first) into increasing
// positions. The first slot written reuses firstListSlot (the reader's
// last-loaded slot, if any) so that bytes past the new length are left as
// ghost values rather than zeroed.
func writePreparedIndices(storage slot.Storage, side tick.Side, cache []tick.OuterIndex, unreadCount uint16, firstListSlot *codec.ListSlot) {
	if len(cache) == 0 {
		return
	}

	remaining := append([]tick.OuterIndex(nil), cache...)

	startSlotIndex := unreadCount / codec.ListSlotWidth
	sizeAfter := unreadCount + uint16(len(cache))
	finalSlotIndexInclusive := (sizeAfter - 1) / codec.ListSlotWidth

	for slotIndex := startSlotIndex; slotIndex <= finalSlotIndexInclusive; slotIndex++ {
		var ls codec.ListSlot
		var startRel uint16
		if slotIndex == startSlotIndex {
			if firstListSlot != nil {
				ls = *firstListSlot
			}
			startRel = unreadCount % codec.ListSlotWidth
		}

		finalRel := uint16(codec.ListSlotWidth - 1)
		if slotIndex == finalSlotIndexInclusive {
			finalRel = (sizeAfter - 1) % codec.ListSlotWidth
		}

		for rel := startRel; rel <= finalRel; rel++ {
			outer := remaining[len(remaining)-1]
			remaining = remaining[:len(remaining)-1]
			ls.Set(int(rel), uint16(outer))
		}

		key := slot.ListKey(uint8(side), slotIndex)
		slot.WriteIfChanged(storage, key, ls.Encode())
	}
}
