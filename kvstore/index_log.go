package kvstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// returned by forEach callbacks to stop the scan without an error
var errStopScan = errors.New("stop scan")

// indexLog is the file of fixed-size slots
type indexLog struct {
	path string
	file *os.File
	// always a multiple of SlotSize
	size int64
	// bytes of a partially written slot at the end of the file, if any
	partial int64
}

func openIndexLog(path string, truncate bool) (*indexLog, error) {
	file, size, err := openLogFile(path, truncate)
	if err != nil {
		return nil, fmt.Errorf("kvstore: failed to open index file: %w", err)
	}
	partial := size % SlotSize
	return &indexLog{
		path:    path,
		file:    file,
		size:    size - partial,
		partial: partial,
	}, nil
}

func (l *indexLog) slotCount() int64 {
	return l.size / SlotSize
}

// forEach calls fn for every slot in file order. s is nil for absent slots.
// fn can return errStopScan to end the scan early.
func (l *indexLog) forEach(fn func(off int64, s *Slot) error) error {
	sr := io.NewSectionReader(l.file, 0, l.size)
	r := bufio.NewReaderSize(sr, SlotSize*128)
	buf := make([]byte, SlotSize)
	for off := int64(0); off < l.size; off += SlotSize {
		_, err := io.ReadFull(r, buf)
		if err != nil {
			return fmt.Errorf("kvstore: failed to read slot at offset %d: %w", off, err)
		}
		s, err := DecodeSlot(buf)
		if err != nil {
			return fmt.Errorf("kvstore: slot at offset %d: %w", off, err)
		}
		err = fn(off, s)
		if err == errStopScan {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readSlotAt reads and decodes a single slot
func (l *indexLog) readSlotAt(off int64) (*Slot, error) {
	if off < 0 || off%SlotSize != 0 || off+SlotSize > l.size {
		return nil, fmt.Errorf("kvstore: invalid slot offset %d", off)
	}
	buf := make([]byte, SlotSize)
	_, err := l.file.ReadAt(buf, off)
	if err != nil {
		return nil, fmt.Errorf("kvstore: failed to read slot at offset %d: %w", off, err)
	}
	s, err := DecodeSlot(buf)
	if err != nil {
		return nil, fmt.Errorf("kvstore: slot at offset %d: %w", off, err)
	}
	return s, nil
}

// scanForLive returns the first live slot for id and its offset.
// Returns nil slot if there's none.
func (l *indexLog) scanForLive(id string) (*Slot, int64, error) {
	var found *Slot
	foundOff := int64(-1)
	err := l.forEach(func(off int64, s *Slot) error {
		if s.IsLive() && s.Identifier == id {
			found = s
			foundOff = off
			return errStopScan
		}
		return nil
	})
	if err != nil {
		return nil, -1, err
	}
	return found, foundOff, nil
}

// scanAllLive returns identifiers of live slots in file order
func (l *indexLog) scanAllLive() ([]string, error) {
	res := []string{}
	err := l.forEach(func(off int64, s *Slot) error {
		if s.IsLive() {
			res = append(res, s.Identifier)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// appendSlot writes slot d at the end of the file and returns its offset.
// A partially written trailing slot is overwritten.
func (l *indexLog) appendSlot(d []byte) (int64, error) {
	if len(d) != SlotSize {
		return 0, fmt.Errorf("kvstore: slot is %d bytes, expected %d", len(d), SlotSize)
	}
	off := l.size
	err := writeAtSync(l.file, d, off)
	if err != nil {
		return 0, fmt.Errorf("kvstore: failed to append slot at offset %d: %w", off, err)
	}
	l.size += SlotSize
	l.partial = 0
	return off, nil
}

// rewriteSlotAt overwrites the slot at off in place
func (l *indexLog) rewriteSlotAt(off int64, d []byte) error {
	if len(d) != SlotSize {
		return fmt.Errorf("kvstore: slot is %d bytes, expected %d", len(d), SlotSize)
	}
	if off < 0 || off%SlotSize != 0 || off+SlotSize > l.size {
		return fmt.Errorf("kvstore: invalid slot offset %d", off)
	}
	err := writeAtSync(l.file, d, off)
	if err != nil {
		return fmt.Errorf("kvstore: failed to rewrite slot at offset %d: %w", off, err)
	}
	return nil
}

func (l *indexLog) close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
