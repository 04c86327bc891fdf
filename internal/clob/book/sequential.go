package book

import (
	"github.com/goblinclob/engine/internal/clob/slot"
	"github.com/goblinclob/engine/internal/clob/tick"
)

// SequentialRemover is the matcher's removal primitive (spec section 4.4):
// it repeatedly consumes the centre-most outer index as the matcher
// depletes it, with no cache, because the removed prefix is always
// contiguous with the centre end of the list.
type SequentialRemover struct {
	reader   *ListReader
	consumed uint16
}

// NewSequentialRemover constructs a remover over side's outer-index list,
// which currently has outerIndexCount entries.
func NewSequentialRemover(storage slot.Storage, side tick.Side, outerIndexCount uint16) *SequentialRemover {
	return &SequentialRemover{reader: NewListReader(storage, side, outerIndexCount)}
}

// Next pulls the next centre-most outer index, or ok=false at exhaustion.
func (s *SequentialRemover) Next() (tick.OuterIndex, bool) {
	res, ok := s.reader.Next()
	if !ok {
		return 0, false
	}
	return res.OuterIndex, true
}

// MarkConsumed records that the outer index most recently returned by Next
// was fully depleted and must not remain in the list.
func (s *SequentialRemover) MarkConsumed() {
	s.consumed++
}

// CommitRemoval decrements previousCount by the number of fully-consumed
// indices and returns the list's new length. No slot writes are needed:
// the consumed entries are exactly the trailing, closest-to-centre suffix
// of the list, so shrinking the count alone excises them.
func (s *SequentialRemover) CommitRemoval(previousCount uint16) uint16 {
	return previousCount - s.consumed
}
