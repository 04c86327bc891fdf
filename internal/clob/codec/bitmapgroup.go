package codec

import "github.com/goblinclob/engine/internal/clob/slot"

// GroupWidth is the number of bitmaps packed into one BitmapGroup slot.
const GroupWidth = 32

// BitmapGroup packs 32 one-byte bitmaps (256 order slots) into a single
// 32-byte storage slot, keyed by outer index. Byte-for-byte identical to
// the raw slot value, so encode/decode are no-ops beyond the type wrapper.
type BitmapGroup struct {
	Inner [GroupWidth]byte
}

func DecodeBitmapGroup(v slot.Value) BitmapGroup {
	return BitmapGroup{Inner: v}
}

func (g BitmapGroup) Encode() slot.Value {
	return slot.Value(g.Inner)
}

// IsActive reports whether any bit in the group is set. A group is active
// iff it is non-zero (invariant I2 ties this to outer-list membership).
func (g BitmapGroup) IsActive() bool {
	return g.Inner != [GroupWidth]byte{}
}

// Bit reports whether a resting order exists at (innerIndex, roi).
func (g BitmapGroup) Bit(innerIndex uint8, roi uint8) bool {
	return g.Inner[innerIndex]&(1<<roi) != 0
}

// Set sets or clears the bit at (innerIndex, roi).
func (g *BitmapGroup) Set(innerIndex uint8, roi uint8, present bool) {
	if present {
		g.Inner[innerIndex] |= 1 << roi
	} else {
		g.Inner[innerIndex] &^= 1 << roi
	}
}

// BitmapEmpty reports whether the byte at innerIndex has no bits set.
func (g BitmapGroup) BitmapEmpty(innerIndex uint8) bool {
	return g.Inner[innerIndex] == 0
}

// BestFreeOrderIndex returns the lowest unused resting-order index at
// innerIndex, or ok=false if the tick's eight slots are full.
func (g BitmapGroup) BestFreeOrderIndex(innerIndex uint8) (roi uint8, ok bool) {
	b := g.Inner[innerIndex]
	for i := uint8(0); i < 8; i++ {
		if b&(1<<i) == 0 {
			return i, true
		}
	}
	return 0, false
}
