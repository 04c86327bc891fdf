package codec

import (
	"encoding/binary"

	"github.com/goblinclob/engine/internal/clob/slot"
)

// TraderState is per (trader, token): how many lots of that token the
// trader has deposited and free to use, versus locked against resting
// orders. Layout (big-endian, 32 bytes):
//
//	[0:8]   free lots
//	[8:16]  locked lots
//	[16:32] reserved, always zero
type TraderState struct {
	FreeLots   uint64
	LockedLots uint64
}

func DecodeTraderState(v slot.Value) TraderState {
	return TraderState{
		FreeLots:   binary.BigEndian.Uint64(v[0:8]),
		LockedLots: binary.BigEndian.Uint64(v[8:16]),
	}
}

func (ts TraderState) Encode() slot.Value {
	var v slot.Value
	binary.BigEndian.PutUint64(v[0:8], ts.FreeLots)
	binary.BigEndian.PutUint64(v[8:16], ts.LockedLots)
	return v
}

// LockLots moves lots from free into locked, e.g. when a resting order is
// placed. Returns cloberrors-free; callers check sufficiency beforehand.
func (ts *TraderState) LockLots(amount uint64) {
	ts.FreeLots -= amount
	ts.LockedLots += amount
}

// UnlockLots moves lots from locked back into free, e.g. on cancel.
func (ts *TraderState) UnlockLots(amount uint64) {
	ts.LockedLots -= amount
	ts.FreeLots += amount
}

// CreditFree adds to the free balance, e.g. on deposit or on receiving
// proceeds from a fill.
func (ts *TraderState) CreditFree(amount uint64) {
	ts.FreeLots += amount
}

// DebitLocked removes lots from the locked balance without returning them
// to free, e.g. when a resting order is filled and its locked lots are
// consumed by the trade.
func (ts *TraderState) DebitLocked(amount uint64) {
	ts.LockedLots -= amount
}

// DebitFree removes lots from the free balance without touching locked,
// e.g. a taker paying for a match out of funds it never locked. Mirrors
// the reference's use_free_quote_lots/use_free_base_lots. Callers check
// sufficiency beforehand.
func (ts *TraderState) DebitFree(amount uint64) {
	ts.FreeLots -= amount
}
