package recio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ErrInvalidHeader is returned for a record header that can't be parsed
var ErrInvalidHeader = errors.New("recio: invalid record header")

// Reader reads records written by Writer
type Reader struct {
	r *bufio.Reader

	// must match Writer.NoTimestamp. Without it a header with
	// a single field after the size is a timestamp, with it a name
	NoTimestamp bool

	// valid after ReadNext(), over-written by the next call
	Data      []byte
	Name      string
	Timestamp time.Time

	// Record is valid after ReadNextRecord()
	Record *ReadRecord

	// offset of the current record
	CurrRecordPos int64
	// offset of the next record
	NextRecordPos int64

	err  error
	done bool
}

func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{
		r:      br,
		Record: &ReadRecord{},
	}
}

// Done returns true if there are no more records or there was an error
func (r *Reader) Done() bool {
	return r.done || r.err != nil
}

// Err returns a read error. End of input is not an error.
func (r *Reader) Err() error {
	return r.err
}

type header struct {
	size int64
	ts   time.Time
	name string
}

func parseHeader(line []byte, noTimestamp bool) (*header, error) {
	rest := bytes.TrimPrefix(line, hdrPrefix)
	rest = bytes.TrimSuffix(rest, []byte{'\n'})

	sizeStr, rest, hasMore := bytes.Cut(rest, []byte{' '})
	size, err := strconv.ParseInt(string(sizeStr), 10, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidHeader, line)
	}
	h := &header{
		size: size,
	}
	if !hasMore {
		return h, nil
	}
	if noTimestamp {
		h.name = string(rest)
		return h, nil
	}
	tsStr, name, _ := bytes.Cut(rest, []byte{' '})
	ms, err := strconv.ParseInt(string(tsStr), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidHeader, line)
	}
	h.ts = TimeFromUnixMillisecond(ms)
	h.name = string(name)
	return h, nil
}

// ReadNext reads the next record into Data, Name and Timestamp.
// Returns false at the end of input or on error, check Err().
func (r *Reader) ReadNext() bool {
	if r.Done() {
		return false
	}
	r.CurrRecordPos = r.NextRecordPos
	line, err := r.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			r.done = true
		} else if err == io.EOF {
			r.err = fmt.Errorf("%w: truncated '%s'", ErrInvalidHeader, line)
		} else {
			r.err = err
		}
		return false
	}
	h, err := parseHeader(line, r.NoTimestamp)
	if err != nil {
		r.err = err
		return false
	}
	r.Name = h.name
	r.Timestamp = h.ts

	// re-use the buffer unless it got big
	if cap(r.Data) > 1024*1024 || h.size > int64(cap(r.Data)) {
		r.Data = make([]byte, h.size)
	} else {
		r.Data = r.Data[:h.size]
	}
	n, err := io.ReadFull(r.r, r.Data)
	if err != nil {
		r.err = fmt.Errorf("recio: record '%s' at %d: wanted %d bytes, got %d: %w", h.name, r.CurrRecordPos, h.size, n, err)
		return false
	}
	recSize := int64(len(line)) + h.size
	// newline added by the writer for readability
	if n > 0 && r.Data[n-1] != '\n' {
		_, err = r.r.Discard(1)
		if err != nil {
			r.err = err
			return false
		}
		recSize++
	}
	r.NextRecordPos += recSize
	return true
}

// ReadNextRecord reads the next record and decodes it as key / value Record
func (r *Reader) ReadNextRecord() bool {
	if !r.ReadNext() {
		return false
	}
	_, r.err = UnmarshalRecord(r.Data, r.Record)
	if r.err != nil {
		return false
	}
	r.Record.Name = r.Name
	r.Record.Timestamp = r.Timestamp
	return true
}
