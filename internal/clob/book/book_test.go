package book

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goblinclob/engine/internal/clob/codec"
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trader(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

// Scenario 1: post-only bid at tick 0x100003 qty 1.
func TestScenarioPostOnlyBidPlacesOrder(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	tk, err := tick.NewTick(0x100003)
	require.NoError(t, err)

	orderID, err := b.Place(tick.Bid, tk, trader(1), 1, true, false, 0, &market)
	require.NoError(t, err)
	assert.Equal(t, tick.RestingOrderIndex(0), orderID.RestingOrderIndex)

	ls := rawListSlot(t, storage, tick.Bid, 0)
	assert.Equal(t, uint16(0x8000), ls.Get(0))

	group := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(0x8000)))
	assert.Equal(t, byte(0b0000_0001), group.Inner[3])

	ro := codec.DecodeRestingOrder(storage.SLoad(slot.RestingOrderKey(tk.Uint32(), 0)))
	assert.False(t, ro.DoesNotExist())
	assert.Equal(t, uint64(1), ro.NumBaseLots)

	require.NotNil(t, market.BestTick[tick.Bid])
	assert.Equal(t, tk, *market.BestTick[tick.Bid])
}

// Scenario 2: two orders at the same tick occupy roi 0 and roi 1.
func TestScenarioTwoOrdersSameTick(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	tk, _ := tick.NewTick(0x100003)

	id0, err := b.Place(tick.Bid, tk, trader(1), 1, false, false, 0, &market)
	require.NoError(t, err)
	id1, err := b.Place(tick.Bid, tk, trader(2), 1, false, false, 0, &market)
	require.NoError(t, err)

	assert.Equal(t, tick.RestingOrderIndex(0), id0.RestingOrderIndex)
	assert.Equal(t, tick.RestingOrderIndex(1), id1.RestingOrderIndex)

	group := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(0x8000)))
	assert.Equal(t, byte(0b0000_0011), group.Inner[3])
}

// Scenario 3: two orders at different inner indices within one group
// result in a single BitmapGroup write covering both bits.
func TestScenarioTwoOrdersSameGroupDifferentInner(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	t0, _ := tick.NewTick(0)
	t1, _ := tick.NewTick(1)

	_, err := b.Place(tick.Ask, t0, trader(1), 1, false, false, 0, &market)
	require.NoError(t, err)
	_, err = b.Place(tick.Ask, t1, trader(2), 1, false, false, 0, &market)
	require.NoError(t, err)

	group := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(0)))
	assert.Equal(t, byte(1), group.Inner[0])
	assert.Equal(t, byte(1), group.Inner[1])
}

// Scenario 4: two orders in different groups produce two outer-index list
// entries and two distinct group slots.
func TestScenarioTwoOrdersDifferentGroups(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	t0, _ := tick.NewTick(0)
	t32, _ := tick.NewTick(32)

	_, err := b.Place(tick.Ask, t0, trader(1), 1, false, false, 0, &market)
	require.NoError(t, err)
	_, err = b.Place(tick.Ask, t32, trader(2), 1, false, false, 0, &market)
	require.NoError(t, err)

	assert.Equal(t, uint16(2), market.OuterIndexLength(tick.Ask))

	g0 := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(0)))
	g1 := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(1)))
	assert.True(t, g0.Bit(0, 0))
	assert.True(t, g1.Bit(0, 0))
}

func TestCancelRemovesOrderAndOuterIndexWhenGroupEmpties(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	tk, _ := tick.NewTick(0x100003)
	trd := trader(1)
	orderID, err := b.Place(tick.Bid, tk, trd, 1, false, false, 0, &market)
	require.NoError(t, err)

	err = b.Cancel(tick.Bid, orderID, trd, &market)
	require.NoError(t, err)

	assert.Equal(t, uint16(0), market.OuterIndexLength(tick.Bid))
	assert.Nil(t, market.BestTick[tick.Bid])

	// The emptied group's slot is left as a ghost, not zeroed; removing its
	// outer index from the list is what retires it.
	group := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(0x8000)))
	assert.True(t, group.IsActive())

	ro := codec.DecodeRestingOrder(storage.SLoad(slot.RestingOrderKey(tk.Uint32(), 0)))
	assert.True(t, ro.DoesNotExist())
}

func TestCancelByNonOwnerFails(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	tk, _ := tick.NewTick(5)
	orderID, err := b.Place(tick.Ask, tk, trader(1), 1, false, false, 0, &market)
	require.NoError(t, err)

	err = b.Cancel(tick.Ask, orderID, trader(2), &market)
	require.Error(t, err)
}

func TestPostOnlyRejectsCrossingOrder(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	askTick, _ := tick.NewTick(100)
	_, err := b.Place(tick.Ask, askTick, trader(1), 5, false, false, 0, &market)
	require.NoError(t, err)

	bidTick, _ := tick.NewTick(100)
	_, err = b.Place(tick.Bid, bidTick, trader(2), 1, true, false, 0, &market)
	require.Error(t, err)
}

// Scenario 7: a taker sweeps two ask levels, the first fully and the
// second partially, leaving best_tick[Ask] at the second level.
func TestScenarioTakerSweepsTwoLevels(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	t1, _ := tick.NewTick(100)
	t2, _ := tick.NewTick(200)

	_, err := b.Place(tick.Ask, t1, trader(1), 10, false, false, 0, &market)
	require.NoError(t, err)
	_, err = b.Place(tick.Ask, t2, trader(2), 10, false, false, 0, &market)
	require.NoError(t, err)

	result, err := b.MatchTaker(tick.Bid, trader(99), 15, nil, &market)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), result.FilledBaseLots)

	outer1, inner1 := t1.Indices()
	group1 := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(uint16(outer1))))
	assert.False(t, group1.Bit(uint8(inner1), 0))

	ro1 := codec.DecodeRestingOrder(storage.SLoad(slot.RestingOrderKey(t1.Uint32(), 0)))
	assert.True(t, ro1.DoesNotExist())

	ro2 := codec.DecodeRestingOrder(storage.SLoad(slot.RestingOrderKey(t2.Uint32(), 0)))
	require.False(t, ro2.DoesNotExist())
	assert.Equal(t, uint64(5), ro2.NumBaseLots)

	assert.Equal(t, uint16(1), market.OuterIndexLength(tick.Ask))
	require.NotNil(t, market.BestTick[tick.Ask])
	assert.Equal(t, t2, *market.BestTick[tick.Ask])
}

func TestMatchTakerRejectsSelfTrade(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	tk, _ := tick.NewTick(50)
	trd := trader(7)
	_, err := b.Place(tick.Ask, tk, trd, 5, false, false, 0, &market)
	require.NoError(t, err)

	writesBefore := storage.Writes
	_, err = b.MatchTaker(tick.Bid, trd, 5, nil, &market)
	require.Error(t, err)

	// A failed match stages no writes at all: the resting order placed
	// above must still be exactly as it was.
	assert.Equal(t, writesBefore, storage.Writes)
	ro := codec.DecodeRestingOrder(storage.SLoad(slot.RestingOrderKey(tk.Uint32(), 0)))
	require.False(t, ro.DoesNotExist())
	assert.Equal(t, uint64(5), ro.NumBaseLots)
}

func TestReduceShrinksOrderWithoutRemovingIt(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	tk, _ := tick.NewTick(9)
	trd := trader(3)
	orderID, err := b.Place(tick.Bid, tk, trd, 10, false, false, 0, &market)
	require.NoError(t, err)

	removed, err := b.Reduce(tick.Bid, orderID, trd, 4, &market)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), removed)

	ro := codec.DecodeRestingOrder(storage.SLoad(slot.RestingOrderKey(tk.Uint32(), 0)))
	assert.Equal(t, uint64(6), ro.NumBaseLots)
	assert.Equal(t, uint16(1), market.OuterIndexLength(tick.Bid))
}

func TestReduceBeyondRemainingCancelsOrder(t *testing.T) {
	storage := slot.NewMemoryStorage()
	b := NewBook(storage)
	var market codec.MarketState

	tk, _ := tick.NewTick(9)
	trd := trader(3)
	orderID, err := b.Place(tick.Bid, tk, trd, 10, false, false, 0, &market)
	require.NoError(t, err)

	removed, err := b.Reduce(tick.Bid, orderID, trd, 50, &market)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), removed)
	assert.Equal(t, uint16(0), market.OuterIndexLength(tick.Bid))
}
