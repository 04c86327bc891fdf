package book

import (
	"testing"

	"github.com/goblinclob/engine/internal/clob/codec"
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedList(t *testing.T, storage slot.Storage, side tick.Side, values ...uint16) {
	t.Helper()
	for i, v := range values {
		slotIndex := uint16(i / codec.ListSlotWidth)
		rel := i % codec.ListSlotWidth
		key := slot.ListKey(uint8(side), slotIndex)
		ls := codec.DecodeListSlot(storage.SLoad(key))
		ls.Set(rel, v)
		storage.SStore(key, ls.Encode())
	}
}

func TestListReaderSingleSlotFromCentre(t *testing.T) {
	storage := slot.NewMemoryStorage()
	seedList(t, storage, tick.Bid, 100, 200, 300)

	r := NewListReader(storage, tick.Bid, 3)

	res, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, tick.OuterIndex(300), res.OuterIndex)
	assert.Equal(t, uint16(0), res.SlotIndex)
	assert.Equal(t, uint16(2), res.RelativeIndex)

	res, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, tick.OuterIndex(200), res.OuterIndex)

	res, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, tick.OuterIndex(100), res.OuterIndex)

	_, ok = r.Next()
	assert.False(t, ok)
}

func TestListReaderCrossesSlotBoundary(t *testing.T) {
	storage := slot.NewMemoryStorage()
	values := make([]uint16, 18)
	for i := range values {
		values[i] = uint16(i)
	}
	seedList(t, storage, tick.Ask, values...)

	r := NewListReader(storage, tick.Ask, 18)

	res, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, tick.OuterIndex(17), res.OuterIndex)
	assert.Equal(t, uint16(1), res.SlotIndex)

	res, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, tick.OuterIndex(16), res.OuterIndex)
	assert.Equal(t, uint16(1), res.SlotIndex)

	res, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, tick.OuterIndex(15), res.OuterIndex)
	assert.Equal(t, uint16(0), res.SlotIndex)
}

func TestListReaderEmptyList(t *testing.T) {
	storage := slot.NewMemoryStorage()
	r := NewListReader(storage, tick.Bid, 0)
	_, ok := r.Next()
	assert.False(t, ok)
}
