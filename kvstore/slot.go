package kvstore

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	// SlotSize is the size of a slot in the index file
	SlotSize = 64
	// MaxHeaderSize is the max length of "identifier_start_end_"
	MaxHeaderSize = 32

	slotDelimiter  = '_'
	tombstoneToken = "DELETED"
)

// Slot is a decoded index record
type Slot struct {
	Identifier string
	// [Start, End) range of the value in the data file
	Start int64
	End   int64
	// true if the identifier was deleted
	Tombstone bool
}

// IsLive returns true for a present slot that isn't a tombstone.
// It's safe to call on nil receiver.
func (s *Slot) IsLive() bool {
	return s != nil && !s.Tombstone
}

// Size returns the size of the value in the data file
func (s *Slot) Size() int64 {
	return s.End - s.Start
}

// ValidateIdentifier returns ErrInvalidIdentifier if id can't be stored in a slot.
// It doesn't check the length, which depends on the offsets.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("%w: identifier is empty", ErrInvalidIdentifier)
	}
	if id == tombstoneToken {
		return fmt.Errorf("%w: '%s' is reserved", ErrInvalidIdentifier, id)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == slotDelimiter {
			return fmt.Errorf("%w: '%s' contains '%c'", ErrInvalidIdentifier, id, slotDelimiter)
		}
		if c <= ' ' || c > '~' {
			return fmt.Errorf("%w: '%s' has byte 0x%02x at %d", ErrInvalidIdentifier, id, c, i)
		}
	}
	return nil
}

func appendHeader(b []byte, id string, start, end int64) []byte {
	b = append(b, id...)
	b = append(b, slotDelimiter)
	b = strconv.AppendInt(b, start, 10)
	b = append(b, slotDelimiter)
	b = strconv.AppendInt(b, end, 10)
	b = append(b, slotDelimiter)
	return b
}

func checkRange(start, end int64) error {
	if start < 0 || end < start {
		return fmt.Errorf("kvstore: invalid range [%d, %d)", start, end)
	}
	return nil
}

// EncodeSlot returns the SlotSize bytes of a live slot
func EncodeSlot(id string, start, end int64) ([]byte, error) {
	if err := ValidateIdentifier(id); err != nil {
		return nil, err
	}
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	b := make([]byte, 0, SlotSize)
	b = appendHeader(b, id, start, end)
	if len(b) > MaxHeaderSize {
		return nil, fmt.Errorf("%w: header '%s' is %d bytes, max is %d", ErrIdentifierTooLong, b, len(b), MaxHeaderSize)
	}
	b = b[:SlotSize]
	b[SlotSize-1] = '\n'
	return b, nil
}

// EncodeTombstone returns the SlotSize bytes of a deleted slot.
// The identifier and range are kept after the tombstone token.
func EncodeTombstone(id string, start, end int64) ([]byte, error) {
	// validates the identifier and the header length
	if _, err := EncodeSlot(id, start, end); err != nil {
		return nil, err
	}
	b := make([]byte, 0, SlotSize)
	b = append(b, tombstoneToken...)
	b = append(b, slotDelimiter)
	b = appendHeader(b, id, start, end)
	b = b[:SlotSize]
	b[SlotSize-1] = '\n'
	return b, nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func corruptSlot(b []byte, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s in %q", ErrCorruptSlot, msg, b)
}

// DecodeSlot parses SlotSize bytes. Returns nil, nil for an absent (all zero) slot.
func DecodeSlot(b []byte) (*Slot, error) {
	if len(b) != SlotSize {
		return nil, fmt.Errorf("%w: slot is %d bytes, expected %d", ErrCorruptSlot, len(b), SlotSize)
	}
	if isAllZero(b) {
		return nil, nil
	}
	if b[SlotSize-1] != '\n' {
		return nil, corruptSlot(b, "missing newline sentinel")
	}
	body := b[:SlotSize-1]
	n := bytes.IndexByte(body, 0)
	if n < 0 {
		n = len(body)
	}
	if !isAllZero(body[n:]) {
		return nil, corruptSlot(b, "non-zero padding")
	}
	hdr := string(body[:n])
	if len(hdr) == 0 || hdr[len(hdr)-1] != slotDelimiter {
		return nil, corruptSlot(b, "header doesn't end with '%c'", slotDelimiter)
	}
	parts := strings.Split(hdr[:len(hdr)-1], string(slotDelimiter))

	res := &Slot{}
	if len(parts) == 4 && parts[0] == tombstoneToken {
		res.Tombstone = true
		parts = parts[1:]
	}
	if len(parts) != 3 {
		return nil, corruptSlot(b, "expected 3 fields, got %d", len(parts))
	}
	res.Identifier = parts[0]
	if err := ValidateIdentifier(res.Identifier); err != nil {
		return nil, corruptSlot(b, "bad identifier")
	}
	var err error
	res.Start, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, corruptSlot(b, "invalid start offset")
	}
	res.End, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, corruptSlot(b, "invalid end offset")
	}
	if checkRange(res.Start, res.End) != nil {
		return nil, corruptSlot(b, "invalid range [%d, %d)", res.Start, res.End)
	}
	// offsets like "+1" or "007" parse but are never written
	var canon []byte
	if res.Tombstone {
		canon = append(canon, tombstoneToken...)
		canon = append(canon, slotDelimiter)
	}
	canon = appendHeader(canon, res.Identifier, res.Start, res.End)
	if string(canon) != hdr {
		return nil, corruptSlot(b, "non-canonical header")
	}
	return res, nil
}
