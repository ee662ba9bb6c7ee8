package kvstore

import "errors"

var (
	// ErrIdentifierTooLong is returned when identifier and offsets don't fit in a slot header
	ErrIdentifierTooLong = errors.New("identifier is too long")

	// ErrInvalidIdentifier is returned for empty identifiers, identifiers with
	// non-printable ASCII, the '_' delimiter or the reserved tombstone token
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrCorruptSlot is returned when a non-zero slot can't be parsed
	ErrCorruptSlot = errors.New("corrupt slot")

	// ErrShortRead is returned when the data file has fewer bytes than a slot references
	ErrShortRead = errors.New("short read from data file")

	// ErrClosed is returned by operations on a closed Store
	ErrClosed = errors.New("store is closed")
)
