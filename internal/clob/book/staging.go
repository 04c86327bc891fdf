package book

import "github.com/goblinclob/engine/internal/clob/slot"

// stagingStorage buffers writes in memory and only applies them to the
// backing Storage on flush, so a multi-write operation that fails partway
// through (spec section 4.7/4.8's "discards all staged writes") leaves the
// real store untouched. Reads fall through to the buffer first, then to the
// backing store, so a write staged earlier in the same operation is visible
// to a later read within it.
type stagingStorage struct {
	backing slot.Storage
	writes  map[slot.Key]slot.Value
}

func newStagingStorage(backing slot.Storage) *stagingStorage {
	return &stagingStorage{backing: backing, writes: make(map[slot.Key]slot.Value)}
}

func (s *stagingStorage) SLoad(key slot.Key) slot.Value {
	if v, ok := s.writes[key]; ok {
		return v
	}
	return s.backing.SLoad(key)
}

func (s *stagingStorage) SStore(key slot.Key, value slot.Value) {
	s.writes[key] = value
}

// flush applies every staged write to the backing store, each still subject
// to write-if-changed against the backing store's own bytes. Call only on
// an operation's success path.
func (s *stagingStorage) flush() {
	for key, value := range s.writes {
		slot.WriteIfChanged(s.backing, key, value)
	}
}
