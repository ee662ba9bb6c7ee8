package recio

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

var hdrPrefix = []byte("--- ")

// Writer writes length-prefixed records:
//
//	--- ${size} ${timestamp_ms} ${name}\n
//	${data}\n
//
// Timestamp and name are optional. A '\n' is added after data only
// if data doesn't already end with one.
type Writer struct {
	w io.Writer
	// NoTimestamp disables writing timestamp so that output
	// only depends on data and names
	NoTimestamp bool

	buf bytes.Buffer
	mu  sync.Mutex
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w: w,
	}
}

// Write writes d as a single record. Zero t means current time.
// Returns number of bytes written, including the header.
func (w *Writer) Write(d []byte, t time.Time, name string) (int, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	// don't keep a large buffer around after a single large record
	if w.buf.Cap() > 256*1024 && len(d) < 64*1024 {
		w.buf = bytes.Buffer{}
	}
	if w.NoTimestamp {
		t = time.Time{}
	} else if t.IsZero() {
		t = time.Now()
	}
	rec := MarshalLine(name, t, d, &w.buf)
	return w.w.Write(rec)
}

// WriteRecord writes key / value record r and resets it
func (w *Writer) WriteRecord(r *Record) (int, error) {
	n, err := w.Write(r.Marshal(), r.Timestamp, r.Name)
	r.Reset()
	return n, err
}

// name is the last field of the header so it can contain spaces but
// can't span lines
func validateName(name string) error {
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("recio: record name '%s' contains a newline", name)
	}
	return nil
}

// MarshalLine serializes a record with header. Zero t is not written.
// If buf is given, it's reset and used for the result.
func MarshalLine(name string, t time.Time, d []byte, buf *bytes.Buffer) []byte {
	if buf == nil {
		buf = &bytes.Buffer{}
	} else {
		buf.Reset()
	}
	buf.Grow(len(hdrPrefix) + len(name) + len(d) + 48)

	buf.Write(hdrPrefix)
	buf.WriteString(strconv.Itoa(len(d)))
	if !t.IsZero() {
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatInt(TimeToUnixMillisecond(t), 10))
	}
	if name != "" {
		buf.WriteByte(' ')
		buf.WriteString(name)
	}
	buf.WriteByte('\n')
	if n := len(d); n > 0 {
		buf.Write(d)
		if d[n-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// TimeToUnixMillisecond converts t into Unix epoch time in milliseconds
func TimeToUnixMillisecond(t time.Time) int64 {
	return t.UnixNano() / 1e6
}

// TimeFromUnixMillisecond returns time from Unix epoch time in milliseconds
func TimeFromUnixMillisecond(unixMs int64) time.Time {
	return time.Unix(0, unixMs*1e6)
}
