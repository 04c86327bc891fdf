package book

import (
	"testing"

	"github.com/goblinclob/engine/internal/clob/codec"
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivePositionsBidTraversalOrder(t *testing.T) {
	var g codec.BitmapGroup
	g.Set(3, 7, true)
	g.Set(3, 0, true)
	g.Set(1, 4, true)

	got := ActivePositions(g, tick.Bid, nil)
	want := []Position{
		{Inner: 3, ROI: 7},
		{Inner: 3, ROI: 0},
		{Inner: 1, ROI: 4},
	}
	assert.Equal(t, want, got)
}

func TestActivePositionsAskTraversalOrder(t *testing.T) {
	var g codec.BitmapGroup
	g.Set(1, 0, true)
	g.Set(1, 5, true)
	g.Set(4, 2, true)

	got := ActivePositions(g, tick.Ask, nil)
	want := []Position{
		{Inner: 1, ROI: 0},
		{Inner: 1, ROI: 5},
		{Inner: 4, ROI: 2},
	}
	assert.Equal(t, want, got)
}

func TestActivePositionsExcludesUpToStartingPosition(t *testing.T) {
	var g codec.BitmapGroup
	g.Set(3, 7, true)
	g.Set(3, 5, true)
	g.Set(3, 0, true)

	excl := Position{Inner: 3, ROI: 7}
	got := ActivePositions(g, tick.Bid, &excl)
	want := []Position{{Inner: 3, ROI: 5}, {Inner: 3, ROI: 0}}
	assert.Equal(t, want, got)
}

func TestBitmapInserterFlushesOnOuterChange(t *testing.T) {
	storage := slot.NewMemoryStorage()
	bi := NewBitmapInserter(storage)

	bi.Activate(10, 3, 0, true)
	bi.Activate(10, 3, 1, true)
	bi.Activate(20, 0, 0, true)

	g1 := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(10)))
	assert.True(t, g1.Bit(3, 0))
	assert.True(t, g1.Bit(3, 1))

	bi.WriteLastBitmapGroup()
	g2 := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(20)))
	assert.True(t, g2.Bit(0, 0))
}

func TestBitmapLookupRemoverReportsEmptyGroup(t *testing.T) {
	storage := slot.NewMemoryStorage()
	var g codec.BitmapGroup
	g.Set(5, 2, true)
	storage.SStore(slot.BitmapGroupKey(99), g.Encode())

	r := NewBitmapLookupRemover(storage)
	remaining, empty := r.Deactivate(99, 5, 2)
	assert.True(t, empty)
	assert.False(t, remaining.IsActive())

	// The emptied group is not written back: its slot keeps the old bit.
	stored := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(99)))
	assert.True(t, stored.IsActive())
}

func TestBitmapLookupRemoverLeavesGroupActiveWithOtherBits(t *testing.T) {
	storage := slot.NewMemoryStorage()
	var g codec.BitmapGroup
	g.Set(5, 2, true)
	g.Set(5, 3, true)
	storage.SStore(slot.BitmapGroupKey(7), g.Encode())

	r := NewBitmapLookupRemover(storage)
	_, empty := r.Deactivate(7, 5, 2)
	assert.False(t, empty)

	stored := codec.DecodeBitmapGroup(storage.SLoad(slot.BitmapGroupKey(7)))
	require.True(t, stored.Bit(5, 3))
}
