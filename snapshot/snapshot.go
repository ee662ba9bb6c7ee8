// Package snapshot exports live entries of a kvstore.Store to a single
// file and imports them back.
//
// A snapshot is a sequence of recio records. The first is a key / value
// header named "kvstore-snapshot", followed by one record per entry with
// the identifier as its name and the serialized value as its data.
// Paths ending with .gz, .zstd, .zst or .br are compressed.
package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kjk/kvstore/kvstore"
	"github.com/kjk/kvstore/recio"
	"github.com/kjk/kvstore/u"
)

const (
	headerName = "kvstore-snapshot"
	version    = 1
)

// can be replaced in tests
var newWriter = u.NewWriterMaybeCompressed

// ErrInvalidSnapshot is returned when the file is not a snapshot
var ErrInvalidSnapshot = errors.New("snapshot: invalid snapshot")

// Info describes a snapshot
type Info struct {
	Serializer string
	Created    time.Time
	Entries    int
}

// Export writes all live entries of s to path. The file is replaced
// only when the whole snapshot was written.
func Export(s *kvstore.Store, path string) (*Info, error) {
	f, err := u.NewAtomicFile(path)
	if err != nil {
		return nil, err
	}
	defer f.RemoveIfNotClosed()

	cw, err := newWriter(f, path)
	if err != nil {
		return nil, err
	}
	cwClosed := false
	defer func() {
		if !cwClosed {
			_ = cw.Close()
		}
	}()
	w := recio.NewWriter(cw)
	w.NoTimestamp = true

	info := &Info{
		Serializer: s.Serializer().Name(),
		Created:    time.Now().UTC(),
	}
	hdr := &recio.Record{Name: headerName}
	err = hdr.Write(
		"version", version,
		"serializer", info.Serializer,
		"created", info.Created.Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	if _, err = w.WriteRecord(hdr); err != nil {
		return nil, err
	}

	err = s.Range(func(id string, d []byte) error {
		info.Entries++
		_, err := w.Write(d, time.Time{}, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: export to '%s' failed: %w", path, err)
	}
	cwClosed = true
	if err = cw.Close(); err != nil {
		return nil, err
	}
	if err = f.Close(); err != nil {
		return nil, err
	}
	return info, nil
}

func readHeader(r *recio.Reader) (*Info, error) {
	if !r.ReadNextRecord() {
		if r.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, r.Err())
		}
		return nil, fmt.Errorf("%w: empty file", ErrInvalidSnapshot)
	}
	rec := r.Record
	if rec.Name != headerName {
		return nil, fmt.Errorf("%w: unexpected first record '%s'", ErrInvalidSnapshot, rec.Name)
	}
	v, _ := rec.Get("version")
	if n, err := strconv.Atoi(v); err != nil || n != version {
		return nil, fmt.Errorf("%w: unsupported version '%s'", ErrInvalidSnapshot, v)
	}
	info := &Info{}
	info.Serializer, _ = rec.Get("serializer")
	if created, ok := rec.Get("created"); ok {
		info.Created, _ = time.Parse(time.RFC3339, created)
	}
	return info, nil
}

// Import puts all entries from snapshot at path into s, replacing
// existing values. Serializer of s must match the one used for export.
func Import(s *kvstore.Store, path string) (*Info, error) {
	f, err := u.OpenFileMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := recio.NewReader(f)
	r.NoTimestamp = true
	info, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if got := s.Serializer().Name(); info.Serializer != got {
		return nil, fmt.Errorf("snapshot: '%s' was exported with serializer '%s', store uses '%s'", path, info.Serializer, got)
	}
	for r.ReadNext() {
		if err = s.PutRaw(r.Name, r.Data); err != nil {
			return nil, fmt.Errorf("snapshot: failed to import '%s': %w", r.Name, err)
		}
		info.Entries++
	}
	if r.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, r.Err())
	}
	return info, nil
}

// ReadInfo reads the header and counts entries without importing them
func ReadInfo(path string) (*Info, error) {
	f, err := u.OpenFileMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := recio.NewReader(f)
	r.NoTimestamp = true
	info, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	for r.ReadNext() {
		info.Entries++
	}
	if r.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, r.Err())
	}
	return info, nil
}
