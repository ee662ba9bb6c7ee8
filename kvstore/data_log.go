package kvstore

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// openLogFile opens or creates path for reading and writing.
// If truncate is true, existing content is discarded.
// Returns the file and its size.
func openLogFile(path string, truncate bool) (*os.File, int64, error) {
	flags := os.O_RDWR | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, 0, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	return file, st.Size(), nil
}

// writeAtSync writes d at off and flushes the file to stable storage
func writeAtSync(file *os.File, d []byte, off int64) error {
	_, err := file.WriteAt(d, off)
	if err != nil {
		return err
	}
	return file.Sync()
}

// dataLog is the append-only file with serialized values
type dataLog struct {
	path string
	file *os.File
	size int64
}

func openDataLog(path string, truncate bool) (*dataLog, error) {
	file, size, err := openLogFile(path, truncate)
	if err != nil {
		return nil, fmt.Errorf("kvstore: failed to open data file: %w", err)
	}
	return &dataLog{
		path: path,
		file: file,
		size: size,
	}, nil
}

// append writes d at the end of the file and returns [start, end) range it occupies.
// Empty d doesn't touch the file.
func (l *dataLog) append(d []byte) (int64, int64, error) {
	start := l.size
	if len(d) == 0 {
		return start, start, nil
	}
	err := writeAtSync(l.file, d, start)
	if err != nil {
		return 0, 0, fmt.Errorf("kvstore: failed to append %d bytes to data file: %w", len(d), err)
	}
	l.size += int64(len(d))
	return start, l.size, nil
}

// readRange reads [start, end) range. Returns ErrShortRead if the file
// has fewer bytes.
func (l *dataLog) readRange(start, end int64) ([]byte, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	n := end - start
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	nRead, err := l.file.ReadAt(buf, start)
	if nRead == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: wanted %d bytes at offset %d, got %d", ErrShortRead, n, start, nRead)
	}
	return nil, fmt.Errorf("kvstore: failed to read %d bytes at offset %d: %w", n, start, err)
}

func (l *dataLog) close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
