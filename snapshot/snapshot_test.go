package snapshot

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"go.uber.org/zap/zaptest"

	"github.com/kjk/kvstore/kvstore"
	"github.com/kjk/kvstore/serializer"
	"github.com/kjk/kvstore/u"
)

type user struct {
	Name  string
	Email string
	Age   int
}

func openStore(t *testing.T, ser serializer.Serializer) *kvstore.Store {
	s, err := kvstore.Open(&kvstore.Options{
		Dir:        t.TempDir(),
		Serializer: ser,
		Logger:     zaptest.NewLogger(t),
	})
	assert.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func fillStore(t *testing.T, s *kvstore.Store) {
	assert.NoError(t, s.Put("u1", user{Name: "John", Email: "john@example.com", Age: 32}))
	assert.NoError(t, s.Put("u2", user{Name: "Jane", Email: "jane@example.com", Age: 28}))
	assert.NoError(t, s.Put("empty", nil))
	assert.NoError(t, s.Put("note", "multi\nline\n"))
	assert.NoError(t, s.Put("gone", 1))
	_, err := s.Delete("gone")
	assert.NoError(t, err)
}

func TestExportImport(t *testing.T) {
	for _, name := range []string{"snap.txt", "snap.gz", "snap.zstd", "snap.br"} {
		t.Run(name, func(t *testing.T) {
			src := openStore(t, nil)
			fillStore(t, src)

			path := filepath.Join(t.TempDir(), name)
			info, err := Export(src, path)
			assert.NoError(t, err)
			assert.Equal(t, 4, info.Entries)
			assert.Equal(t, "json", info.Serializer)

			info2, err := ReadInfo(path)
			assert.NoError(t, err)
			assert.Equal(t, 4, info2.Entries)
			assert.Equal(t, info.Created.Unix(), info2.Created.Unix())

			dst := openStore(t, nil)
			assert.NoError(t, dst.Put("u1", "will be replaced"))
			assert.NoError(t, dst.Put("other", 5))
			info, err = Import(dst, path)
			assert.NoError(t, err)
			assert.Equal(t, 4, info.Entries)

			keys, err := dst.Keys()
			assert.NoError(t, err)
			assert.Equal(t, []string{"u1", "other", "u2", "empty", "note"}, keys)

			u, found, err := kvstore.GetValue[user](dst, "u2")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "Jane", u.Name)
			u, _, _ = kvstore.GetValue[user](dst, "u1")
			assert.Equal(t, 32, u.Age)

			note, _, err := kvstore.GetValue[string](dst, "note")
			assert.NoError(t, err)
			assert.Equal(t, "multi\nline\n", note)

			d, found, err := dst.GetRaw("empty")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, 0, len(d))
		})
	}
}

func TestExportFormat(t *testing.T) {
	s := openStore(t, nil)
	assert.NoError(t, s.Put("a", 1))
	assert.NoError(t, s.Put("b", "x"))

	path := filepath.Join(t.TempDir(), "snap.txt")
	_, err := Export(s, path)
	assert.NoError(t, err)
	d, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(d), "--- "))
	assert.True(t, strings.HasSuffix(string(d), "--- 1 a\n1\n--- 3 b\n\"x\"\n"), "got:\n%s", d)
}

func TestImportSerializerMismatch(t *testing.T) {
	src := openStore(t, serializer.MessagePack{})
	fillStore(t, src)
	path := filepath.Join(t.TempDir(), "snap.zst")
	_, err := Export(src, path)
	assert.NoError(t, err)

	dst := openStore(t, nil)
	_, err = Import(dst, path)
	assert.Error(t, err)
	keys, err := dst.Keys()
	assert.NoError(t, err)
	assert.Equal(t, 0, len(keys))

	dst = openStore(t, serializer.MessagePack{})
	_, err = Import(dst, path)
	assert.NoError(t, err)
	u, found, err := kvstore.GetValue[user](dst, "u1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "john@example.com", u.Email)
}

func TestImportInvalid(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, nil)

	tests := []string{
		"",
		"not a snapshot",
		"--- 3 other\nfoo\n",
		"--- 11 kvstore-snapshot\nversion: 9\n",
	}
	for i, content := range tests {
		path := filepath.Join(dir, "bad.txt")
		assert.NoError(t, os.WriteFile(path, []byte(content), 0644))
		_, err := Import(s, path)
		assert.True(t, errors.Is(err, ErrInvalidSnapshot), "test %d: %v", i, err)
	}

	_, err := Import(s, filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestExportFailureKeepsOldFile(t *testing.T) {
	s := openStore(t, nil)
	assert.NoError(t, s.Put("a", 1))
	path := filepath.Join(t.TempDir(), "snap.txt")
	assert.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	assert.NoError(t, s.Close())
	_, err := Export(s, path)
	assert.True(t, errors.Is(err, kvstore.ErrClosed), "got %v", err)
	d, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "old", string(d))
	entries, err := os.ReadDir(filepath.Dir(path))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
}

type closeTracker struct {
	io.WriteCloser
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return c.WriteCloser.Close()
}

func TestExportFailureClosesCompressor(t *testing.T) {
	var tracked []*closeTracker
	newWriter = func(w io.Writer, path string) (io.WriteCloser, error) {
		cw, err := u.NewWriterMaybeCompressed(w, path)
		if err != nil {
			return nil, err
		}
		ct := &closeTracker{WriteCloser: cw}
		tracked = append(tracked, ct)
		return ct, nil
	}
	defer func() {
		newWriter = u.NewWriterMaybeCompressed
	}()

	s := openStore(t, nil)
	fillStore(t, s)
	dir := t.TempDir()

	_, err := Export(s, filepath.Join(dir, "ok.zst"))
	assert.NoError(t, err)

	assert.NoError(t, s.Close())
	for _, name := range []string{"fail.zst", "fail.br", "fail.gz"} {
		_, err = Export(s, filepath.Join(dir, name))
		assert.True(t, errors.Is(err, kvstore.ErrClosed), "%s: got %v", name, err)
	}

	assert.Equal(t, 4, len(tracked))
	for i, ct := range tracked {
		assert.Equal(t, 1, ct.closed, "writer %d", i)
	}
}
