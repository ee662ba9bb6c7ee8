package u

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

var (
	// ErrCancelled is returned by AtomicFile calls after RemoveIfNotClosed()
	ErrCancelled = errors.New("cancelled")

	_ io.WriteCloser = &AtomicFile{}
)

// AtomicFile writes to a temporary file in the destination directory
// and renames it to destination in Close(). On any error the temporary
// file is removed and the destination is left untouched.
//
//	f, err := u.NewAtomicFile(path)
//	if err != nil {
//		return err
//	}
//	defer f.RemoveIfNotClosed()
//	if _, err = f.Write(d); err != nil {
//		return err
//	}
//	return f.Close()
type AtomicFile struct {
	dstPath string
	dir     string
	tmpPath string
	tmpFile *os.File
	// first error, returned by all subsequent calls
	err error
}

func NewAtomicFile(path string) (*AtomicFile, error) {
	dir, name := filepath.Split(path)
	if name == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	tmpFile, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &AtomicFile{
		dstPath: path,
		dir:     dir,
		tmpPath: tmpFile.Name(),
		tmpFile: tmpFile,
	}, nil
}

func (f *AtomicFile) fail(err error) error {
	if err == nil {
		return nil
	}
	if f.err == nil {
		f.err = err
	}
	_ = f.Close()
	return err
}

func (f *AtomicFile) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.Write(d)
	return n, f.fail(err)
}

// RemoveIfNotClosed removes the temporary file unless Close() was
// already called. Meant to be used with defer.
func (f *AtomicFile) RemoveIfNotClosed() {
	if f == nil || f.tmpFile == nil {
		return
	}
	f.err = ErrCancelled
	_ = f.Close()
}

// Close flushes the temporary file and renames it to destination.
// Can be called multiple times, returns the first error.
func (f *AtomicFile) Close() error {
	if f.tmpFile == nil {
		return f.err
	}
	tmpFile := f.tmpFile
	f.tmpFile = nil

	errSync := tmpFile.Sync()
	errClose := tmpFile.Close()

	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(f.tmpPath)
		}
	}()

	if f.err != nil {
		return f.err
	}
	err := errSync
	if err == nil {
		err = errClose
	}
	if err == nil {
		err = os.Rename(f.tmpPath, f.dstPath)
		renamed = err == nil
	}
	if renamed {
		// nice to have, ignore errors
		if d, _ := os.Open(f.dir); d != nil {
			_ = d.Sync()
			_ = d.Close()
		}
	}
	f.err = err
	return err
}
