package kvstore

// Stats describes content of the store files
type Stats struct {
	Slots      int
	Live       int
	Tombstones int
	// all-zero slots
	Absent int

	IndexSize int64
	DataSize  int64
	// bytes referenced by live slots
	LiveBytes int64
	// bytes of overwritten and deleted values, never reclaimed
	OrphanedBytes int64
}

// Stats scans the index file and returns stats about the store
func (s *Store) Stats() (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	res := &Stats{
		IndexSize: s.index.size,
		DataSize:  s.data.size,
	}
	err := s.index.forEach(func(off int64, slot *Slot) error {
		res.Slots++
		switch {
		case slot == nil:
			res.Absent++
		case slot.Tombstone:
			res.Tombstones++
		default:
			res.Live++
			res.LiveBytes += slot.Size()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.OrphanedBytes = res.DataSize - res.LiveBytes
	return res, nil
}
