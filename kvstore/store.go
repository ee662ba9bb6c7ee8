package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/kjk/kvstore/serializer"
)

const (
	DefaultDataFileName  = "KeyValue.db"
	DefaultIndexFileName = "KeyValue.dbindex"
)

type Options struct {
	// directory for data and index files. Default is current directory.
	// Ignored if Ephemeral is true.
	Dir string
	// if true, existing data and index files are truncated
	FreshStart bool
	// if true, files are created in a new temporary directory which
	// is removed by Close()
	Ephemeral bool
	// default is serializer.Default (JSON)
	Serializer serializer.Serializer
	// default is a no-op logger
	Logger *zap.Logger
	// if true, keeps identifier => slot offset map in memory to avoid
	// scanning the index file on every lookup
	KeyMap bool

	DataFileName  string
	IndexFileName string
}

type Store struct {
	opts Options

	dataFilePath  string
	indexFilePath string
	// temporary directory we created for Ephemeral store
	tempDir string

	data  *dataLog
	index *indexLog
	keys  *keyMap
	ser   serializer.Serializer
	sugar *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// Open opens or creates the store files described by opts.
// nil opts means default options.
func Open(opts *Options) (*Store, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Dir == "" {
		o.Dir = "."
	}
	if o.DataFileName == "" {
		o.DataFileName = DefaultDataFileName
	}
	if o.IndexFileName == "" {
		o.IndexFileName = DefaultIndexFileName
	}
	if o.Serializer == nil {
		o.Serializer = serializer.Default
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.DataFileName == o.IndexFileName {
		return nil, fmt.Errorf("kvstore: data and index file names must be different")
	}

	s := &Store{
		opts:  o,
		ser:   o.Serializer,
		sugar: o.Logger.Sugar(),
	}
	err := s.open()
	if err != nil {
		s.release()
		return nil, err
	}
	return s, nil
}

func (s *Store) open() error {
	o := &s.opts
	var err error
	if o.Ephemeral {
		s.tempDir, err = os.MkdirTemp("", "kvstore-")
		if err != nil {
			return fmt.Errorf("kvstore: failed to create temporary directory: %w", err)
		}
		o.Dir = s.tempDir
	} else {
		err = os.MkdirAll(o.Dir, 0755)
		if err != nil {
			return fmt.Errorf("kvstore: failed to create directory: %w", err)
		}
	}

	s.dataFilePath, err = filepath.Abs(filepath.Join(o.Dir, o.DataFileName))
	if err != nil {
		return fmt.Errorf("kvstore: failed to get absolute path for data file: %w", err)
	}
	s.indexFilePath, err = filepath.Abs(filepath.Join(o.Dir, o.IndexFileName))
	if err != nil {
		return fmt.Errorf("kvstore: failed to get absolute path for index file: %w", err)
	}

	s.data, err = openDataLog(s.dataFilePath, o.FreshStart)
	if err != nil {
		return err
	}
	s.index, err = openIndexLog(s.indexFilePath, o.FreshStart)
	if err != nil {
		return err
	}
	if s.index.partial > 0 {
		s.sugar.Warnw("ignoring partially written slot at end of index file",
			"path", s.indexFilePath, "offset", s.index.size, "bytes", s.index.partial)
	}
	if o.KeyMap {
		s.keys, err = buildKeyMap(s.index)
		if err != nil {
			return err
		}
	}
	s.sugar.Debugw("opened store",
		"data", s.dataFilePath, "dataSize", s.data.size,
		"index", s.indexFilePath, "slots", s.index.slotCount(),
		"serializer", s.ser.Name(), "keyMap", o.KeyMap)
	return nil
}

// release closes files and removes temporary directory
func (s *Store) release() error {
	err1 := s.data.close()
	err2 := s.index.close()
	if s.tempDir != "" {
		// best effort, we don't fail Close() because of it
		if err := os.RemoveAll(s.tempDir); err != nil {
			s.sugar.Warnw("failed to remove temporary directory", "dir", s.tempDir, "err", err)
		}
		s.tempDir = ""
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Close closes the files. Ephemeral store files are removed.
// Calling Close() twice is a no-op.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.release()
}

// Dir returns the directory with store files
func (s *Store) Dir() string {
	return s.opts.Dir
}

// DataFilePath returns absolute path of the data file
func (s *Store) DataFilePath() string {
	return s.dataFilePath
}

// IndexFilePath returns absolute path of the index file
func (s *Store) IndexFilePath() string {
	return s.indexFilePath
}

// Serializer returns serializer used for values
func (s *Store) Serializer() serializer.Serializer {
	return s.ser
}

// findLive returns the live slot for id and its offset, nil if there's none
// must be called with s.mu locked
func (s *Store) findLive(id string) (*Slot, int64, error) {
	if s.keys != nil {
		return s.keys.find(s.index, id, s.sugar)
	}
	return s.index.scanForLive(id)
}

// Put serializes v and stores it under id, replacing the previous value.
// nil v stores "no value" i.e. Get() will report it as not found.
func (s *Store) Put(id string, v any) error {
	var d []byte
	if v != nil {
		var err error
		d, err = s.ser.Serialize(v)
		if err != nil {
			return fmt.Errorf("kvstore: failed to serialize value of '%s': %w", id, err)
		}
	}
	return s.PutRaw(id, d)
}

// PutRaw stores already serialized d under id
func (s *Store) PutRaw(id string, d []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	// encode before writing anything so that invalid identifier
	// doesn't leave an orphaned value in data file
	start := s.data.size
	end := start + int64(len(d))
	slot, err := EncodeSlot(id, start, end)
	if err != nil {
		return err
	}

	prev, off, err := s.findLive(id)
	if err != nil {
		return err
	}

	start2, end2, err := s.data.append(d)
	if err != nil {
		return err
	}
	if start2 != start || end2 != end {
		return fmt.Errorf("kvstore: data appended at [%d, %d), expected [%d, %d)", start2, end2, start, end)
	}

	if prev != nil {
		err = s.index.rewriteSlotAt(off, slot)
		if err != nil {
			return err
		}
		s.sugar.Debugw("put", "id", id, "start", start, "end", end, "slot", off, "op", "update")
		return nil
	}

	off, err = s.index.appendSlot(slot)
	if err != nil {
		return err
	}
	s.keys.set(id, off)
	s.sugar.Debugw("put", "id", id, "start", start, "end", end, "slot", off, "op", "insert")
	return nil
}

// GetRaw returns serialized value of id. found is false if there's no
// live slot for id or its value can't be fully read from data file.
// A value stored as "no value" returns nil data and found = true.
func (s *Store) GetRaw(id string) (d []byte, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	slot, _, err := s.findLive(id)
	if err != nil || slot == nil {
		return nil, false, err
	}
	d, err = s.data.readRange(slot.Start, slot.End)
	if err != nil {
		if errors.Is(err, ErrShortRead) {
			s.sugar.Warnw("treating value as absent", "id", id, "err", err)
			return nil, false, nil
		}
		return nil, false, err
	}
	return d, true, nil
}

// Get deserializes value of id into v, which must be a pointer.
// Returns false if id doesn't exist or has no value.
func (s *Store) Get(id string, v any) (bool, error) {
	d, found, err := s.GetRaw(id)
	if err != nil || !found || len(d) == 0 {
		return false, err
	}
	err = s.ser.Deserialize(d, v)
	if err != nil {
		return false, fmt.Errorf("kvstore: failed to deserialize value of '%s': %w", id, err)
	}
	return true, nil
}

// GetValue returns value of id as T
func GetValue[T any](s *Store, id string) (T, bool, error) {
	var v T
	found, err := s.Get(id, &v)
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// Delete marks id as deleted. Returns false if id doesn't exist.
// The value stays in data file.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	slot, off, err := s.findLive(id)
	if err != nil || slot == nil {
		return false, err
	}
	d, err := EncodeTombstone(slot.Identifier, slot.Start, slot.End)
	if err != nil {
		return false, err
	}
	err = s.index.rewriteSlotAt(off, d)
	if err != nil {
		return false, err
	}
	s.keys.remove(id)
	s.sugar.Debugw("delete", "id", id, "slot", off)
	return true, nil
}

// Keys returns identifiers of all live values in the order of their
// slots in the index file
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.index.scanAllLive()
}

// Range calls fn with identifier and serialized value of every live
// entry, in index order, as a consistent view. Values that can't be
// fully read are skipped. fn must not call other Store methods.
func (s *Store) Range(fn func(id string, d []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.index.forEach(func(off int64, slot *Slot) error {
		if !slot.IsLive() {
			return nil
		}
		d, err := s.data.readRange(slot.Start, slot.End)
		if errors.Is(err, ErrShortRead) {
			s.sugar.Warnw("skipping value", "id", slot.Identifier, "err", err)
			return nil
		}
		if err != nil {
			return err
		}
		return fn(slot.Identifier, d)
	})
}

// Slots calls fn for every slot in the index file, including absent
// (nil) and deleted slots. fn must not call other Store methods.
func (s *Store) Slots(fn func(off int64, slot *Slot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.index.forEach(fn)
}

// WithFilesLocked calls fn with paths of data and index files while no
// other operation can modify them. fn must not call other Store methods.
func (s *Store) WithFilesLocked(fn func(dataPath, indexPath string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return fn(s.dataFilePath, s.indexFilePath)
}
