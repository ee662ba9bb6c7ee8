package u

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
)

func TestCompressRoundTrip(t *testing.T) {
	d := []byte(strings.Repeat("compress me please ", 100))

	c, err := ZstdCompress(d)
	assert.NoError(t, err)
	assert.True(t, len(c) < len(d))
	d2, err := ZstdDecompress(c)
	assert.NoError(t, err)
	assert.Equal(t, d, d2)

	c, err = BrotliCompress(d)
	assert.NoError(t, err)
	assert.True(t, len(c) < len(d))
	d2, err = BrotliDecompress(c)
	assert.NoError(t, err)
	assert.Equal(t, d, d2)
}

func TestWriterMaybeCompressed(t *testing.T) {
	dir := t.TempDir()
	d := []byte(strings.Repeat("line of text\n", 50))
	for _, name := range []string{"f.txt", "f.gz", "f.zstd", "f.zst", "f.br"} {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		assert.NoError(t, err)
		w, err := NewWriterMaybeCompressed(f, path)
		assert.NoError(t, err)
		_, err = w.Write(d)
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
		assert.NoError(t, f.Close())

		if name != "f.txt" {
			assert.True(t, FileSize(path) < int64(len(d)), "%s", name)
		}

		r, err := OpenFileMaybeCompressed(path)
		assert.NoError(t, err)
		var buf bytes.Buffer
		_, err = io.Copy(&buf, r)
		assert.NoError(t, err)
		assert.NoError(t, r.Close())
		assert.Equal(t, d, buf.Bytes(), "%s", name)
	}
}

func TestAtomicFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	f, err := NewAtomicFile(path)
	assert.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.False(t, PathExists(path))
	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close())
	assert.True(t, PathExists(path))
	assert.Equal(t, int64(5), FileSize(path))

	// cancelled write leaves previous content
	f, err = NewAtomicFile(path)
	assert.NoError(t, err)
	_, err = f.Write([]byte("bye"))
	assert.NoError(t, err)
	f.RemoveIfNotClosed()
	assert.True(t, errors.Is(f.Close(), ErrCancelled))
	d, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(d))

	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
}

func TestFileHelpers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	assert.False(t, PathExists(path))
	assert.Equal(t, int64(-1), FileSize(path))
	assert.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	assert.True(t, PathExists(path))
	assert.Equal(t, int64(4), FileSize(path))

	home, err := os.UserHomeDir()
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x"), ExpandTildeInPath("~/x"))
	assert.Equal(t, "/a/b", ExpandTildeInPath("/a/b"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "12 bytes", FormatSize(12))
	assert.Equal(t, "1 kB", FormatSize(1024))
	assert.Equal(t, "1.50 MB", FormatSize(1024*1024*3/2))
	assert.Equal(t, float64(0), Percent(0, 5))
	assert.Equal(t, float64(50), Percent(10, 5))
}
