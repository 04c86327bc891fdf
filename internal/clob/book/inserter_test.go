package book

import (
	"testing"

	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readList(t *testing.T, storage slot.Storage, side tick.Side, count uint16) []uint16 {
	t.Helper()
	r := NewListReader(storage, side, count)
	var out []uint16
	for {
		res, ok := r.Next()
		if !ok {
			break
		}
		out = append(out, uint16(res.OuterIndex))
	}
	// Next() walks centre outward; reverse to get ascending storage order.
	rev := make([]uint16, len(out))
	for i, v := range out {
		rev[len(out)-1-i] = v
	}
	return rev
}

func TestPrepareBidEmptyList(t *testing.T) {
	storage := slot.NewMemoryStorage()
	ins := NewListInserter(storage, tick.Bid, 0)
	needsInsertion := ins.Prepare(100)
	assert.True(t, needsInsertion)
	ins.Commit()
	assert.Equal(t, uint16(1), ins.NewLength())
	assert.Equal(t, []uint16{100}, readList(t, storage, tick.Bid, ins.NewLength()))
}

func TestPrepareBidEqualIndexIsNoOp(t *testing.T) {
	storage := slot.NewMemoryStorage()
	seedList(t, storage, tick.Bid, 100)
	ins := NewListInserter(storage, tick.Bid, 1)
	needsInsertion := ins.Prepare(100)
	assert.False(t, needsInsertion)
	ins.Commit()
	assert.Equal(t, uint16(1), ins.NewLength())
}

func TestPrepareBidCloserToCentreBackfills(t *testing.T) {
	// Bid: closer-to-centre is larger. List already has [100], and we
	// insert 150, which must end up after 100 (closer to centre goes at
	// the end of storage order).
	storage := slot.NewMemoryStorage()
	seedList(t, storage, tick.Bid, 100)
	ins := NewListInserter(storage, tick.Bid, 1)
	needsInsertion := ins.Prepare(150)
	assert.True(t, needsInsertion)
	ins.Commit()
	assert.Equal(t, []uint16{100, 150}, readList(t, storage, tick.Bid, ins.NewLength()))
}

func TestPrepareBidAwayFromCentreInsertsBeforeExisting(t *testing.T) {
	// List has [100] (closest to centre at position 0 for this single
	// entry case); inserting 50 (farther from centre) must land before it.
	storage := slot.NewMemoryStorage()
	seedList(t, storage, tick.Bid, 100)
	ins := NewListInserter(storage, tick.Bid, 1)
	needsInsertion := ins.Prepare(50)
	assert.True(t, needsInsertion)
	ins.Commit()
	assert.Equal(t, []uint16{50, 100}, readList(t, storage, tick.Bid, ins.NewLength()))
}

func TestWritePreparedIndicesBasicReverseOrder(t *testing.T) {
	storage := slot.NewMemoryStorage()
	ins := NewListInserter(storage, tick.Bid, 0)
	ins.Prepare(300)
	ins.Prepare(200)
	ins.Prepare(100)
	ins.Commit()
	assert.Equal(t, uint16(3), ins.NewLength())
	assert.Equal(t, []uint16{100, 200, 300}, readList(t, storage, tick.Bid, ins.NewLength()))
}

func TestWritePreparedIndicesMultiSlot(t *testing.T) {
	storage := slot.NewMemoryStorage()
	ins := NewListInserter(storage, tick.Ask, 0)
	for i := uint16(0); i < 18; i++ {
		ins.Prepare(tick.OuterIndex(i))
	}
	ins.Commit()
	require.Equal(t, uint16(18), ins.NewLength())

	// Asks are stored descending: the centre-most (smallest) index is last.
	got := readList(t, storage, tick.Ask, ins.NewLength())
	want := make([]uint16, 18)
	for i := range want {
		want[i] = uint16(17 - i)
	}
	assert.Equal(t, want, got)
}

func TestWritePreparedIndicesWithUnreadCount(t *testing.T) {
	storage := slot.NewMemoryStorage()
	seedList(t, storage, tick.Bid, 10, 20, 30)
	ins := NewListInserter(storage, tick.Bid, 3)
	ins.Prepare(40)
	ins.Commit()
	assert.Equal(t, []uint16{10, 20, 30, 40}, readList(t, storage, tick.Bid, ins.NewLength()))
}
