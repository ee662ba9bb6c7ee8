package kvstore

import (
	"go.uber.org/zap"
)

// keyMap maps identifiers to offsets of their live slots.
// It's derived from the index file and rebuilt on every open.
// Methods are safe to call on nil receiver (key map disabled).
type keyMap struct {
	offsets map[string]int64
}

func buildKeyMap(l *indexLog) (*keyMap, error) {
	m := &keyMap{
		offsets: map[string]int64{},
	}
	err := l.forEach(func(off int64, s *Slot) error {
		if !s.IsLive() {
			return nil
		}
		// first live slot wins, same as scanForLive
		if _, ok := m.offsets[s.Identifier]; !ok {
			m.offsets[s.Identifier] = off
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *keyMap) set(id string, off int64) {
	if m != nil {
		m.offsets[id] = off
	}
}

func (m *keyMap) remove(id string) {
	if m != nil {
		delete(m.offsets, id)
	}
}

// find reads the slot at the remembered offset. If it doesn't hold a
// live slot for id anymore, falls back to scanning the index.
func (m *keyMap) find(l *indexLog, id string, sugar *zap.SugaredLogger) (*Slot, int64, error) {
	off, ok := m.offsets[id]
	if !ok {
		return nil, -1, nil
	}
	s, err := l.readSlotAt(off)
	if err != nil {
		return nil, -1, err
	}
	if s.IsLive() && s.Identifier == id {
		return s, off, nil
	}
	sugar.Warnw("key map is stale, scanning index", "id", id, "offset", off)
	s, off, err = l.scanForLive(id)
	if err != nil {
		return nil, -1, err
	}
	if s == nil {
		delete(m.offsets, id)
	} else {
		m.offsets[id] = off
	}
	return s, off, nil
}
