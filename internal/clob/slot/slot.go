// Package slot models L0, the external key/value storage collaborator, and
// the deterministic key derivation described in spec section 6. Reads and
// writes here are treated as orders of magnitude more expensive than
// in-memory work; every other layer is built to minimise traffic through
// this package.
package slot

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goblinclob/engine/pkg/metrics"
)

// Key is a 32-byte storage key.
type Key [32]byte

// Value is a 32-byte storage value. All values are big-endian blobs from
// the engine's point of view; individual codecs choose their own internal
// layout (see internal/clob/codec).
type Value [32]byte

// Storage is the L0 collaborator: a (32-byte key) -> (32-byte value) map
// with sload/sstore semantics. Implementations need not be concurrency
// safe; the engine is a single logical actor per transaction (spec
// section 5).
type Storage interface {
	SLoad(key Key) Value
	SStore(key Key, value Value)
}

// MemoryStorage is an in-memory Storage used by tests and by the example
// host in cmd/clobd. Unset keys read as the zero value, matching the
// "ghost value" semantics a real backend would also exhibit for never-
// written slots.
type MemoryStorage struct {
	slots map[Key]Value
	// Writes counts every SStore call, regardless of whether the value
	// changed. Used by tests asserting invariant I6 (a commit writes a
	// slot only if the value actually changed) against the write-skipping
	// wrapper below, not against this raw backend.
	Writes int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{slots: make(map[Key]Value)}
}

func (m *MemoryStorage) SLoad(key Key) Value {
	return m.slots[key]
}

func (m *MemoryStorage) SStore(key Key, value Value) {
	m.Writes++
	m.slots[key] = value
}

// WriteIfChanged implements the commit discipline's central rule (spec
// section 4.7 / invariant I6): sstore only if the final bytes differ from
// what sload currently returns. Returns whether a write occurred.
func WriteIfChanged(s Storage, key Key, value Value) bool {
	if s.SLoad(key) == value {
		metrics.SlotWrites.WithLabelValues("skipped").Inc()
		return false
	}
	s.SStore(key, value)
	metrics.SlotWrites.WithLabelValues("written").Inc()
	return true
}

// Key seeds, one per slot kind, matching spec section 6's hash("kind", ...)
// scheme. Keys are keccak256 over the seed and its parameters so that
// different slot kinds can never collide, the same way an EVM-style
// contract separates storage namespaces.
const (
	seedList        = "list"
	seedBitmapGroup = "group"
	seedRestingOrd  = "order"
	seedMarket      = "market"
	seedTrader      = "trader"
)

func keccak(parts ...[]byte) Key {
	var key Key
	copy(key[:], crypto.Keccak256(parts...))
	return key
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func be64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// ListKey derives the storage key of the ListSlot holding list position
// [index*16, index*16+16) of one side's outer-index list.
func ListKey(side uint8, index uint16) Key {
	return keccak([]byte(seedList), []byte{side}, be16(index))
}

// BitmapGroupKey derives the storage key of the BitmapGroup for outer.
func BitmapGroupKey(outer uint16) Key {
	return keccak([]byte(seedBitmapGroup), be16(outer))
}

// RestingOrderKey derives the storage key of the resting order at
// (tick, resting_order_index).
func RestingOrderKey(tickValue uint32, roi uint8) Key {
	return keccak([]byte(seedRestingOrd), be32(tickValue), []byte{roi})
}

// MarketKey derives the well-known storage key of the single market's
// MarketState slot.
func MarketKey() Key {
	return keccak([]byte(seedMarket))
}

// TraderKey derives the storage key of a trader's TraderState for a given
// token.
func TraderKey(trader common.Address, token common.Address) Key {
	return keccak([]byte(seedTrader), trader.Bytes(), token.Bytes())
}
