package codec

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goblinclob/engine/internal/clob/slot"
)

// trackBlockBit is the high bit of byte 20, distinguishing whether the
// expiry field is a block number or a unix timestamp.
const trackBlockBit = 0b1000_0000

// RestingOrder is the 32-byte slot persisted at H(tick, roi): trader id,
// base-lot quantity, and an optional expiry. Layout (big-endian):
//
//	[0:20]  trader address
//	[20:28] num_base_lots, 63 bits; top bit of byte 20 is the TrackBlock flag
//	[28:32] expiry: block number or unix timestamp, per TrackBlock
type RestingOrder struct {
	Trader       common.Address
	NumBaseLots  uint64
	TrackBlock   bool
	ExpiryOrZero uint32
}

func DecodeRestingOrder(v slot.Value) RestingOrder {
	trader := common.BytesToAddress(v[0:20])
	trackBlock := v[20]&trackBlockBit != 0

	var lotBytes [8]byte
	copy(lotBytes[:], v[20:28])
	lotBytes[0] &^= trackBlockBit
	numBaseLots := binary.BigEndian.Uint64(lotBytes[:])

	expiry := binary.BigEndian.Uint32(v[28:32])

	return RestingOrder{
		Trader:       trader,
		NumBaseLots:  numBaseLots,
		TrackBlock:   trackBlock,
		ExpiryOrZero: expiry,
	}
}

func (o RestingOrder) Encode() slot.Value {
	var v slot.Value
	copy(v[0:20], o.Trader.Bytes())

	binary.BigEndian.PutUint64(v[20:28], o.NumBaseLots)
	if o.TrackBlock {
		v[20] |= trackBlockBit
	}

	binary.BigEndian.PutUint32(v[28:32], o.ExpiryOrZero)
	return v
}

// DoesNotExist reports whether this slot represents an absent order: the
// zero address is never a valid trader id, matching invariant I1's "bit
// set implies non-empty order" contract from the other direction.
func (o RestingOrder) DoesNotExist() bool {
	return o.Trader == (common.Address{})
}

// Clear resets a RestingOrder to the does-not-exist state.
func (o *RestingOrder) Clear() {
	*o = RestingOrder{}
}

// LastValidBlock returns the expiry block number, if this order expires
// by block height rather than by timestamp.
func (o RestingOrder) LastValidBlock() (uint32, bool) {
	if o.TrackBlock && o.ExpiryOrZero != 0 {
		return o.ExpiryOrZero, true
	}
	return 0, false
}

// LastValidUnixTimestamp returns the expiry unix timestamp, if this order
// expires by wall-clock time rather than by block height.
func (o RestingOrder) LastValidUnixTimestamp() (uint32, bool) {
	if !o.TrackBlock && o.ExpiryOrZero != 0 {
		return o.ExpiryOrZero, true
	}
	return 0, false
}
