// Package kvstore is an embedded key-value store backed by two files:
// an append-only data log and an index log of fixed-size slots.
//
// # Files
//
// A Store consists of two files in Options.Dir:
//   - a data file (default: "KeyValue.db") with serialized values
//     concatenated in write order, no framing
//   - an index file (default: "KeyValue.dbindex") with 64 byte slots
//
// Each slot is a text header followed by zero padding and a '\n' in the
// last byte:
//
//	identifier_start_end_\0\0...\0\n
//	DELETED_identifier_start_end_\0...\0\n   (tombstone)
//
// start and end are byte offsets into the data file. A slot of all zero
// bytes is absent.
//
// # Operations
//
// Lookups scan the index from the start and stop at the first live slot
// for the identifier. Put appends the value to the data file and either
// rewrites the live slot in place or appends a new slot. Delete rewrites
// the live slot as a tombstone. Nothing is ever reclaimed: old values and
// tombstones stay in the files.
//
// # Basic Usage
//
//	s, err := kvstore.Open(&kvstore.Options{Dir: "./data"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	err = s.Put("bench", Exercise{Name: "Bench", Reps: 8})
//	ex, found, err := kvstore.GetValue[Exercise](s, "bench")
//	keys, err := s.Keys()
//
// # Thread Safety
//
// The Store is safe for concurrent use. Every operation holds a single
// mutex for its whole scan / read / write sequence.
package kvstore
