// Package codec implements L1: packing and unpacking the typed 32-byte
// slots the rest of the engine operates on. Every type here round-trips
// through encode/decode (property R1); each type documents its own
// endianness choice at the boundary, per spec section 9's note that the
// straddle between big-endian structs and little-endian-packed ListSlot
// entries must be a deliberate, documented choice rather than an accident.
package codec

import (
	"encoding/binary"

	"github.com/goblinclob/engine/internal/clob/slot"
)

// ListSlotWidth is the number of outer indices packed into one ListSlot.
const ListSlotWidth = 16

// ListSlot holds 16 outer indices packed little-endian into one 32-byte
// slot. Little-endian is chosen here (rather than the big-endian used by
// every other struct in this package) to match the reference
// implementation's native in-memory layout for this one type; see spec
// section 9.
type ListSlot struct {
	Inner [ListSlotWidth]uint16
}

// DecodeListSlot unpacks a raw slot value into a ListSlot.
func DecodeListSlot(v slot.Value) ListSlot {
	var ls ListSlot
	for i := 0; i < ListSlotWidth; i++ {
		ls.Inner[i] = binary.LittleEndian.Uint16(v[i*2 : i*2+2])
	}
	return ls
}

// Encode packs the ListSlot back into a raw slot value.
func (ls ListSlot) Encode() slot.Value {
	var v slot.Value
	for i := 0; i < ListSlotWidth; i++ {
		binary.LittleEndian.PutUint16(v[i*2:i*2+2], ls.Inner[i])
	}
	return v
}

// Get returns the outer index stored at the given relative position
// (0-15) within this slot.
func (ls ListSlot) Get(relativeIndex int) uint16 {
	return ls.Inner[relativeIndex]
}

// Set stores an outer index at the given relative position.
func (ls *ListSlot) Set(relativeIndex int, value uint16) {
	ls.Inner[relativeIndex] = value
}
