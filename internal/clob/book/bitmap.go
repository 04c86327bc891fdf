package book

import (
	"github.com/goblinclob/engine/internal/clob/codec"
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
)

// Position is a coordinate within one BitmapGroup: an inner index and the
// resting-order index within it.
type Position struct {
	Inner tick.InnerIndex
	ROI   tick.RestingOrderIndex
}

// innerSequence returns every inner index in traversal order for side:
// descending for bids (31 down to 0), ascending for asks.
func innerSequence(side tick.Side) []tick.InnerIndex {
	seq := make([]tick.InnerIndex, tick.BitmapsPerGroup)
	for i := 0; i < tick.BitmapsPerGroup; i++ {
		if side == tick.Bid {
			seq[i] = tick.InnerIndex(tick.BitmapsPerGroup - 1 - i)
		} else {
			seq[i] = tick.InnerIndex(i)
		}
	}
	return seq
}

// roiSequence returns every resting-order index in traversal order for
// side: descending for bids (7 down to 0), ascending for asks.
func roiSequence(side tick.Side) []tick.RestingOrderIndex {
	seq := make([]tick.RestingOrderIndex, tick.OrdersPerTick)
	for i := 0; i < tick.OrdersPerTick; i++ {
		if side == tick.Bid {
			seq[i] = tick.RestingOrderIndex(tick.OrdersPerTick - 1 - i)
		} else {
			seq[i] = tick.RestingOrderIndex(i)
		}
	}
	return seq
}

// ActivePositions returns every set bit in group, in section 4.5's
// traversal order for side. If exclude is non-nil, traversal begins
// immediately after that position rather than at the start of the group.
func ActivePositions(group codec.BitmapGroup, side tick.Side, exclude *Position) []Position {
	inners := innerSequence(side)
	rois := roiSequence(side)

	startInnerIdx := 0
	if exclude != nil {
		for i, inner := range inners {
			if inner == exclude.Inner {
				startInnerIdx = i
				break
			}
		}
	}

	var positions []Position
	for i := startInnerIdx; i < len(inners); i++ {
		inner := inners[i]

		startROIIdx := 0
		if exclude != nil && inner == exclude.Inner {
			startROIIdx = len(rois)
			for j, roi := range rois {
				if roi == exclude.ROI {
					startROIIdx = j + 1
					break
				}
			}
		}

		for j := startROIIdx; j < len(rois); j++ {
			roi := rois[j]
			if group.Bit(uint8(inner), uint8(roi)) {
				positions = append(positions, Position{Inner: inner, ROI: roi})
			}
		}
	}
	return positions
}

// BestActiveInner returns the first inner index in traversal order for
// side carrying any active bit, or ok=false if the group is empty.
func BestActiveInner(group codec.BitmapGroup, side tick.Side) (tick.InnerIndex, bool) {
	for _, inner := range innerSequence(side) {
		if !group.BitmapEmpty(uint8(inner)) {
			return inner, true
		}
	}
	return 0, false
}

// BitmapInserter maintains one pinned in-memory BitmapGroup across a run of
// Activate calls, flushing it only when the outer index changes or the
// caller asks explicitly, so that placing several orders into the same
// group costs one slot write instead of one per order (spec section 4.6).
type BitmapInserter struct {
	storage   slot.Storage
	group     codec.BitmapGroup
	lastOuter *tick.OuterIndex
}

func NewBitmapInserter(storage slot.Storage) *BitmapInserter {
	return &BitmapInserter{storage: storage}
}

func (bi *BitmapInserter) flush() {
	if bi.lastOuter != nil && bi.group.IsActive() {
		slot.WriteIfChanged(bi.storage, slot.BitmapGroupKey(uint16(*bi.lastOuter)), bi.group.Encode())
	}
}

// Activate sets the bit at (outer, inner, roi). groupIsEmpty should be true
// when outer is known to be absent from the outer-index list: such a group
// holds no live orders, even if its slot still carries stale bits left by
// BitmapLookupRemover, so Activate starts from an empty group instead of
// loading it.
func (bi *BitmapInserter) Activate(outer tick.OuterIndex, inner tick.InnerIndex, roi tick.RestingOrderIndex, groupIsEmpty bool) {
	if bi.lastOuter == nil || *bi.lastOuter != outer {
		bi.flush()
		if groupIsEmpty {
			bi.group = codec.BitmapGroup{}
		} else {
			bi.group = codec.DecodeBitmapGroup(bi.storage.SLoad(slot.BitmapGroupKey(uint16(outer))))
		}
		o := outer
		bi.lastOuter = &o
	}
	bi.group.Set(uint8(inner), uint8(roi), true)
}

// WriteLastBitmapGroup flushes the pinned group unconditionally (subject
// still to write-if-changed at the storage layer).
func (bi *BitmapInserter) WriteLastBitmapGroup() { bi.flush() }

// CurrentGroup returns the pinned group as currently staged.
func (bi *BitmapInserter) CurrentGroup() codec.BitmapGroup { return bi.group }

// BitmapLookupRemover deactivates a single known (outer, inner, roi)
// coordinate, used by Cancel. When the last bit of a group is cleared the
// group's slot is not written at all, so it keeps its previous bytes as a
// ghost; outer-index removal is what makes the group unreachable (spec
// section 4.6, section 9 "ghost values"/ policy note).
type BitmapLookupRemover struct {
	storage slot.Storage
}

func NewBitmapLookupRemover(storage slot.Storage) *BitmapLookupRemover {
	return &BitmapLookupRemover{storage: storage}
}

// Deactivate clears the bit at (outer, inner, roi) and reports whether the
// owning group became empty as a result.
func (r *BitmapLookupRemover) Deactivate(outer tick.OuterIndex, inner tick.InnerIndex, roi tick.RestingOrderIndex) (group codec.BitmapGroup, becameEmpty bool) {
	key := slot.BitmapGroupKey(uint16(outer))
	group = codec.DecodeBitmapGroup(r.storage.SLoad(key))
	group.Set(uint8(inner), uint8(roi), false)
	if group.IsActive() {
		slot.WriteIfChanged(r.storage, key, group.Encode())
	}
	return group, !group.IsActive()
}
