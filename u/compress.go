package u

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// ZstdCompress compresses d with zstd at best compression level
func ZstdCompress(d []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(d, make([]byte, 0, len(d))), nil
}

// ZstdDecompress decompresses data compressed with ZstdCompress
func ZstdDecompress(d []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(d, nil)
}

// BrotliCompress compresses d with brotli at best compression level
func BrotliCompress(d []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	_, err := w.Write(d)
	if err != nil {
		return nil, err
	}
	err = w.Close()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BrotliDecompress decompresses data compressed with BrotliCompress
func BrotliDecompress(d []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(d))
	return io.ReadAll(r)
}

// implement io.ReadCloser over os.File wrapped with io.Reader.
// io.Closer goes to os.File, io.Reader goes to wrapping reader
type readerWrappedFile struct {
	f *os.File
	r io.Reader
}

func (rc *readerWrappedFile) Close() error {
	return rc.f.Close()
}

func (rc *readerWrappedFile) Read(p []byte) (int, error) {
	return rc.r.Read(p)
}

func wrapInReadCloser(f *os.File, r io.Reader, err error) (io.ReadCloser, error) {
	if err != nil {
		f.Close()
		return nil, err
	}
	return &readerWrappedFile{
		f: f,
		r: r,
	}, nil
}

// OpenFileMaybeCompressed opens a file that might be compressed with gzip
// or zstd or brotli, based on file extension
func OpenFileMaybeCompressed(path string) (io.ReadCloser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch ext {
	case ".gz":
		r, err := gzip.NewReader(f)
		return wrapInReadCloser(f, r, err)
	case ".zstd", ".zst":
		r, err := zstd.NewReader(f)
		return wrapInReadCloser(f, r, err)
	case ".br":
		r := brotli.NewReader(f)
		return wrapInReadCloser(f, r, nil)
	}
	return f, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

// NewWriterMaybeCompressed wraps w in a compressing writer picked by
// extension of path (.gz, .zstd, .br). Close() flushes compressed data
// but doesn't close w.
func NewWriterMaybeCompressed(w io.Writer, path string) (io.WriteCloser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gz":
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case ".zstd", ".zst":
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	case ".br":
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	}
	return nopWriteCloser{w}, nil
}
