package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"

	"github.com/kjk/kvstore/recio"
)

func todayFile(dir string) string {
	return filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".txt")
}

func TestWriteDaily(t *testing.T) {
	var nilWriter *WriteDaily
	assert.NoError(t, nilWriter.WriteString("ignored"))
	assert.NoError(t, nilWriter.Close())

	dir := filepath.Join(t.TempDir(), "log")
	w := NewWriteDaily(dir)
	assert.NoError(t, w.WriteString("line 1\n"))
	assert.NoError(t, w.WriteString("line 2\n"))
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	// re-opened in append mode
	assert.NoError(t, w.WriteString("line 3\n"))
	assert.NoError(t, w.Close())

	d, err := os.ReadFile(todayFile(dir))
	assert.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\nline 3\n", string(d))
}

func TestLogf(t *testing.T) {
	var out bytes.Buffer
	Out = &out
	defer func() {
		Out = os.Stdout
		Verbose = false
	}()
	dir := t.TempDir()
	Init(&Config{Dir: dir})
	defer Close()

	Logf("hello %s\n", "world")
	Verbosef("not logged\n")
	Verbose = true
	Verbosef("verbose %d\n", 5)
	assert.True(t, IfErrf(os.ErrNotExist, "failed: %v", os.ErrNotExist))
	assert.False(t, IfErrf(nil))
	Close()

	s := out.String()
	assert.True(t, strings.HasPrefix(s, "hello world\nverbose 5\nfailed: file does not exist\n"), "got %s", s)
	assert.False(t, strings.Contains(s, "not logged"))

	d, err := os.ReadFile(todayFile(filepath.Join(dir, "log")))
	assert.NoError(t, err)
	assert.Equal(t, s, string(d))
	d, err = os.ReadFile(todayFile(filepath.Join(dir, "errors")))
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(d), "failed: file does not exist\n"))
	assert.True(t, strings.Contains(string(d), "log_test.go"))
}

type point struct {
	X int
}

func TestMarshalEvent(t *testing.T) {
	tm := time.Unix(10, 0)
	d, err := MarshalEvent("put", tm, "id", "user:1", "size", 42)
	assert.NoError(t, err)

	r := recio.NewReader(bytes.NewReader(d))
	assert.True(t, r.ReadNext())
	assert.Equal(t, "put", r.Name)
	assert.True(t, r.Timestamp.Equal(tm))
	assert.True(t, strings.Contains(string(r.Data), "user:1"), "got %s", r.Data)
	assert.True(t, strings.Contains(string(r.Data), "42"), "got %s", r.Data)

	d, err = MarshalEvent("empty", tm)
	assert.NoError(t, err)
	assert.Equal(t, "--- 0 10000 empty\n", string(d))

	_, err = MarshalEvent("odd", tm, "id")
	assert.Error(t, err)
	_, err = MarshalEvent("bad key", tm, point{1}, "v")
	assert.Error(t, err)
}

func TestEvent(t *testing.T) {
	Out = nil
	defer func() {
		Out = os.Stdout
	}()
	dir := t.TempDir()
	Init(&Config{Dir: dir})
	defer Close()

	Event("open", "dir", "/tmp/x", "slots", 3)
	EventWithDuration("get", time.Millisecond, "id", "a")
	Close()

	f, err := os.Open(todayFile(filepath.Join(dir, "events")))
	assert.NoError(t, err)
	defer f.Close()
	r := recio.NewReader(f)
	var names []string
	for r.ReadNext() {
		names = append(names, r.Name)
	}
	assert.NoError(t, r.Err())
	assert.Equal(t, []string{"open", "get"}, names)
}
