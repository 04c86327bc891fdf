package book

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/goblinclob/engine/internal/clob/cloberrors"
	"github.com/goblinclob/engine/internal/clob/codec"
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
)

// State is the book operator's per-call state machine (spec section 4.7):
// Idle -> Scanning -> Draining -> Committing -> Idle, with no implicit
// transitions.
type State uint8

const (
	Idle State = iota
	Scanning
	Draining
	Committing
)

// Book is the L4 composite: it holds no state across top-level operations
// (spec section 5's "no in-memory cache survives between operations"), and
// every method below opens fresh reader/inserter/remover components,
// stages writes, and commits them in one pass.
type Book struct {
	storage slot.Storage
	state   State
}

func NewBook(storage slot.Storage) *Book {
	return &Book{storage: storage, state: Idle}
}

func (b *Book) transition(to State) { b.state = to }

// Place inserts a resting order at tick on the given side, auto-assigning
// the first free resting-order index at that tick. If postOnly, the order
// is rejected with WouldCross rather than crossing the opposite side's
// best price.
func (b *Book) Place(side tick.Side, t tick.Tick, trader common.Address, numBaseLots uint64, postOnly bool, trackBlock bool, expiry uint32, market *codec.MarketState) (tick.OrderId, error) {
	b.transition(Scanning)
	defer b.transition(Idle)

	if postOnly {
		if best := market.BestTick[side.Opposite()]; best != nil {
			crosses := (side == tick.Bid && t >= *best) || (side == tick.Ask && t <= *best)
			if crosses {
				return tick.OrderId{}, cloberrors.New(cloberrors.KindWouldCross, "post-only order would cross the opposite side's best price")
			}
		}
	}

	outer, inner := t.Indices()

	inserter := NewListInserter(b.storage, side, market.OuterIndexLength(side))
	needsInsertion := inserter.Prepare(outer)

	// An outer index absent from the list has no live orders; its slot may
	// still hold ghost bits left by Cancel, so it is not loaded.
	groupKey := slot.BitmapGroupKey(uint16(outer))
	var group codec.BitmapGroup
	if !needsInsertion {
		group = codec.DecodeBitmapGroup(b.storage.SLoad(groupKey))
	}

	roi, ok := group.BestFreeOrderIndex(uint8(inner))
	if !ok {
		return tick.OrderId{}, cloberrors.New(cloberrors.KindOrderBookFull, "tick has no free resting-order slot")
	}
	roiTyped := tick.RestingOrderIndex(roi)
	orderID := tick.OrderId{Tick: t, RestingOrderIndex: roiTyped}

	orderKey := slot.RestingOrderKey(t.Uint32(), roi)
	existing := codec.DecodeRestingOrder(b.storage.SLoad(orderKey))
	if !existing.DoesNotExist() {
		return tick.OrderId{}, cloberrors.New(cloberrors.KindDuplicateOrderID, "resting order slot already occupied")
	}

	b.transition(Draining)

	group.Set(uint8(inner), roi, true)

	ro := codec.RestingOrder{Trader: trader, NumBaseLots: numBaseLots, TrackBlock: trackBlock, ExpiryOrZero: expiry}

	b.transition(Committing)

	slot.WriteIfChanged(b.storage, groupKey, group.Encode())
	slot.WriteIfChanged(b.storage, orderKey, ro.Encode())
	inserter.Commit()
	market.SetOuterIndexLength(side, inserter.NewLength())

	if market.BestTick[side] == nil {
		bt := t
		market.BestTick[side] = &bt
	} else {
		cur := *market.BestTick[side]
		if (side == tick.Bid && t > cur) || (side == tick.Ask && t < cur) {
			bt := t
			market.BestTick[side] = &bt
		}
	}

	return orderID, nil
}

// Cancel removes a resting order outright. The caller must already own
// it; NotOwner and the invariant fault of an absent slot are both
// possible failures.
func (b *Book) Cancel(side tick.Side, orderID tick.OrderId, trader common.Address, market *codec.MarketState) error {
	b.transition(Scanning)
	defer b.transition(Idle)

	orderKey := slot.RestingOrderKey(orderID.Tick.Uint32(), uint8(orderID.RestingOrderIndex))
	ro := codec.DecodeRestingOrder(b.storage.SLoad(orderKey))
	if ro.DoesNotExist() {
		return cloberrors.New(cloberrors.KindInvariantFault, "cancel on a resting order slot that does not exist")
	}
	if ro.Trader != trader {
		return cloberrors.New(cloberrors.KindNotOwner, "caller does not own this resting order")
	}

	b.transition(Draining)

	outer, inner := orderID.Tick.Indices()
	lookup := NewBitmapLookupRemover(b.storage)
	_, groupEmpty := lookup.Deactivate(outer, inner, orderID.RestingOrderIndex)

	ro.Clear()

	b.transition(Committing)
	slot.WriteIfChanged(b.storage, orderKey, ro.Encode())

	if groupEmpty {
		remover := NewListRemover(b.storage, side, market.OuterIndexLength(side))
		remover.Remove(outer)
		remover.Commit()
		market.SetOuterIndexLength(side, remover.NewLength())
	}

	if market.BestTick[side] != nil && *market.BestTick[side] == orderID.Tick {
		market.BestTick[side] = b.computeBestTick(side, market.OuterIndexLength(side))
	}

	return nil
}

// Reduce lowers a resting order's quantity by lotsToRemove, clamped to the
// order's remaining size; a reduction that empties the order falls
// through to a full Cancel. Returns the number of lots actually removed.
func (b *Book) Reduce(side tick.Side, orderID tick.OrderId, trader common.Address, lotsToRemove uint64, market *codec.MarketState) (uint64, error) {
	orderKey := slot.RestingOrderKey(orderID.Tick.Uint32(), uint8(orderID.RestingOrderIndex))
	ro := codec.DecodeRestingOrder(b.storage.SLoad(orderKey))
	if ro.DoesNotExist() {
		return 0, cloberrors.New(cloberrors.KindInvariantFault, "reduce on a resting order slot that does not exist")
	}
	if ro.Trader != trader {
		return 0, cloberrors.New(cloberrors.KindNotOwner, "caller does not own this resting order")
	}

	if lotsToRemove >= ro.NumBaseLots {
		actual := ro.NumBaseLots
		if err := b.Cancel(side, orderID, trader, market); err != nil {
			return 0, err
		}
		return actual, nil
	}

	ro.NumBaseLots -= lotsToRemove
	slot.WriteIfChanged(b.storage, orderKey, ro.Encode())
	return lotsToRemove, nil
}

func (b *Book) computeBestTick(side tick.Side, outerIndexCount uint16) *tick.Tick {
	if outerIndexCount == 0 {
		return nil
	}
	reader := NewListReader(b.storage, side, outerIndexCount)
	res, ok := reader.Next()
	if !ok {
		return nil
	}
	group := codec.DecodeBitmapGroup(b.storage.SLoad(slot.BitmapGroupKey(uint16(res.OuterIndex))))
	inner, ok := BestActiveInner(group, side)
	if !ok {
		return nil
	}
	t := tick.FromIndices(res.OuterIndex, inner)
	return &t
}

// FillEvent records one resting order (fully or partially) crossed against
// a taker.
type FillEvent struct {
	Tick              tick.Tick
	RestingOrderIndex tick.RestingOrderIndex
	Trader            common.Address
	BaseLots          uint64
}

// MatchResult is the outcome of MatchTaker.
type MatchResult struct {
	FilledBaseLots uint64
	Fills          []FillEvent
}

func violatesLimit(restingSide tick.Side, restingTick tick.Tick, limit tick.Tick) bool {
	if restingSide == tick.Ask {
		return restingTick > limit
	}
	return restingTick < limit
}

// MatchTaker crosses an incoming order on takerSide against resting
// orders on the opposite side, centre-out, until maxBaseLots is filled,
// the opposite side is exhausted, or limitTick (if set) would be
// violated. It never pairs the taker against its own resting orders
// (SelfTrade). Partially-filled head orders are rewritten with their
// remaining quantity; depleted orders, bitmap bits, and outer indices are
// all queued for removal and excised in the same commit pass.
func (b *Book) MatchTaker(takerSide tick.Side, takerTrader common.Address, maxBaseLots uint64, limitTick *tick.Tick, market *codec.MarketState) (MatchResult, error) {
	b.transition(Scanning)
	defer b.transition(Idle)

	restingSide := takerSide.Opposite()
	remaining := maxBaseLots
	var result MatchResult

	// Every read and write in this pass goes through a staging buffer,
	// flushed to the real backing store only once the whole scan succeeds.
	// A SelfTrade or InvariantFault discovered partway through must not
	// leave earlier fills' resting-order and bitmap-group writes behind
	// (spec section 4.7/4.8's "discards all staged writes for that
	// operation; no partial commit is permitted").
	staged := newStagingStorage(b.storage)

	outerCount := market.OuterIndexLength(restingSide)
	seq := NewSequentialRemover(staged, restingSide, outerCount)

	b.transition(Draining)

outerLoop:
	for remaining > 0 {
		outerIdx, ok := seq.Next()
		if !ok {
			break
		}

		key := slot.BitmapGroupKey(uint16(outerIdx))
		group := codec.DecodeBitmapGroup(staged.SLoad(key))
		var excludePos *Position
		fullyDepleted := false

		for {
			positions := ActivePositions(group, restingSide, excludePos)
			if len(positions) == 0 {
				fullyDepleted = true
				break
			}
			pos := positions[0]
			t := tick.FromIndices(outerIdx, pos.Inner)

			if limitTick != nil && violatesLimit(restingSide, t, *limitTick) {
				slot.WriteIfChanged(staged, key, group.Encode())
				break outerLoop
			}

			orderKey := slot.RestingOrderKey(t.Uint32(), uint8(pos.ROI))
			ro := codec.DecodeRestingOrder(staged.SLoad(orderKey))
			if ro.DoesNotExist() {
				return result, cloberrors.New(cloberrors.KindInvariantFault, "active bit with no resting order behind it")
			}
			if ro.Trader == takerTrader {
				return result, cloberrors.New(cloberrors.KindSelfTrade, "taker would trade against its own resting order")
			}

			fillAmount := ro.NumBaseLots
			if fillAmount > remaining {
				fillAmount = remaining
			}

			result.Fills = append(result.Fills, FillEvent{Tick: t, RestingOrderIndex: pos.ROI, Trader: ro.Trader, BaseLots: fillAmount})
			result.FilledBaseLots += fillAmount
			remaining -= fillAmount

			if fillAmount == ro.NumBaseLots {
				ro.Clear()
				slot.WriteIfChanged(staged, orderKey, ro.Encode())
				group.Set(uint8(pos.Inner), uint8(pos.ROI), false)
				excludePos = &pos

				if remaining == 0 {
					slot.WriteIfChanged(staged, key, group.Encode())
					if !group.IsActive() {
						seq.MarkConsumed()
					}
					break outerLoop
				}
				continue
			}

			ro.NumBaseLots -= fillAmount
			slot.WriteIfChanged(staged, orderKey, ro.Encode())
			slot.WriteIfChanged(staged, key, group.Encode())
			break outerLoop
		}

		slot.WriteIfChanged(staged, key, group.Encode())
		if fullyDepleted {
			seq.MarkConsumed()
		}
	}

	b.transition(Committing)

	// Flush before computing the new best tick: computeBestTick reads
	// straight from the backing store, and the group holding the new best
	// price may only have its post-match bytes in the staging buffer so
	// far (e.g. a partially-filled head order that stopped the scan).
	staged.flush()

	newCount := seq.CommitRemoval(outerCount)
	market.SetOuterIndexLength(restingSide, newCount)
	market.BestTick[restingSide] = b.computeBestTick(restingSide, newCount)

	return result, nil
}
