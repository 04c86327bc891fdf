package codec

import (
	"encoding/binary"

	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
)

// noBestTick is the sentinel stored when a side of the book is empty: the
// all-ones 24-bit pattern, which is outside the 21-bit tick range and so
// can never be a real price.
const noBestTick = 0x00FFFFFF

// MarketState is the single market's persistent slot: best tick per side,
// outer-index list length per side, fee accrual, and a nonce bumped on
// every committed operation (used by property R2's "modulo nonce bumps"
// carve-out). Layout (big-endian, 32 bytes):
//
//	[0:8]   collected_quote_lot_fees (lifetime total)
//	[8:16]  unclaimed_quote_lot_fees (accrued, not yet claimed)
//	[16:18] bids_outer_index_count
//	[18:20] asks_outer_index_count
//	[20:23] best_bid_tick (24 bits; sentinel 0xFFFFFF means "no bids")
//	[23:26] best_ask_tick (24 bits; sentinel 0xFFFFFF means "no asks")
//	[26:28] fee_bps
//	[28:32] nonce
type MarketState struct {
	CollectedQuoteLotFees uint64
	UnclaimedQuoteLotFees uint64
	OuterIndexCount       [2]uint16
	BestTick              [2]*tick.Tick
	FeeBps                uint16
	Nonce                 uint32
}

func put24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func get24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func DecodeMarketState(v slot.Value) MarketState {
	var ms MarketState
	ms.CollectedQuoteLotFees = binary.BigEndian.Uint64(v[0:8])
	ms.UnclaimedQuoteLotFees = binary.BigEndian.Uint64(v[8:16])
	ms.OuterIndexCount[tick.Bid] = binary.BigEndian.Uint16(v[16:18])
	ms.OuterIndexCount[tick.Ask] = binary.BigEndian.Uint16(v[18:20])

	if bid := get24(v[20:23]); bid != noBestTick {
		t := tick.Tick(bid)
		ms.BestTick[tick.Bid] = &t
	}
	if ask := get24(v[23:26]); ask != noBestTick {
		t := tick.Tick(ask)
		ms.BestTick[tick.Ask] = &t
	}

	ms.FeeBps = binary.BigEndian.Uint16(v[26:28])
	ms.Nonce = binary.BigEndian.Uint32(v[28:32])
	return ms
}

func (ms MarketState) Encode() slot.Value {
	var v slot.Value
	binary.BigEndian.PutUint64(v[0:8], ms.CollectedQuoteLotFees)
	binary.BigEndian.PutUint64(v[8:16], ms.UnclaimedQuoteLotFees)
	binary.BigEndian.PutUint16(v[16:18], ms.OuterIndexCount[tick.Bid])
	binary.BigEndian.PutUint16(v[18:20], ms.OuterIndexCount[tick.Ask])

	if ms.BestTick[tick.Bid] != nil {
		put24(v[20:23], uint32(*ms.BestTick[tick.Bid]))
	} else {
		put24(v[20:23], noBestTick)
	}
	if ms.BestTick[tick.Ask] != nil {
		put24(v[23:26], uint32(*ms.BestTick[tick.Ask]))
	} else {
		put24(v[23:26], noBestTick)
	}

	binary.BigEndian.PutUint16(v[26:28], ms.FeeBps)
	binary.BigEndian.PutUint32(v[28:32], ms.Nonce)
	return v
}

func (ms MarketState) OuterIndexLength(side tick.Side) uint16 {
	return ms.OuterIndexCount[side]
}

func (ms *MarketState) SetOuterIndexLength(side tick.Side, value uint16) {
	ms.OuterIndexCount[side] = value
}

// BestTickValid reports whether best_tick[Bid] < best_tick[Ask] whenever
// both sides are populated; this is invariant I4.
func (ms MarketState) BestTickValid() bool {
	if ms.BestTick[tick.Bid] == nil || ms.BestTick[tick.Ask] == nil {
		return true
	}
	return *ms.BestTick[tick.Bid] < *ms.BestTick[tick.Ask]
}
