package recio

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

/*
Record is a list of key / value pairs serialized as:

	key: value\n

Values that are empty, longer than 120 bytes or have non-printable
characters are written with their length:

	key:+${len}\n
	value\n
*/

type Entry struct {
	Key   string
	Value string
}

// Record is used to build a key / value record
type Record struct {
	Name string
	// zero means current time when written by Writer
	Timestamp time.Time

	buf bytes.Buffer
}

// ReadRecord is a decoded key / value record
type ReadRecord struct {
	Name      string
	Timestamp time.Time
	Entries   []Entry
}

func toStr(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf("%v", v)
}

// Write appends key / value pairs, keys and values are converted to strings
func (r *Record) Write(args ...any) error {
	n := len(args)
	if n == 0 || n%2 != 0 {
		return fmt.Errorf("recio: invalid number of args: %d, should be multiple of 2", n)
	}
	for i := 0; i < n; i += 2 {
		k := toStr(args[i])
		if err := validateKey(k); err != nil {
			return err
		}
		r.marshalKeyVal(k, toStr(args[i+1]))
	}
	return nil
}

// Reset clears key / values and timestamp but keeps the name
func (r *Record) Reset() {
	r.Timestamp = time.Time{}
	r.buf.Reset()
}

// Marshal returns serialized key / values, valid until Reset()
func (r *Record) Marshal() []byte {
	return r.buf.Bytes()
}

func validateKey(k string) error {
	for i := 0; i < len(k); i++ {
		if k[i] == ':' || k[i] == '\n' {
			return fmt.Errorf("recio: invalid key '%s'", k)
		}
	}
	return nil
}

func needsLongFormat(s string) bool {
	if len(s) == 0 || len(s) > 120 {
		return true
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 32 || s[i] > 126 {
			return true
		}
	}
	return false
}

func (r *Record) marshalKeyVal(key, val string) {
	r.buf.WriteString(key)
	if !needsLongFormat(val) {
		r.buf.WriteString(": ")
		r.buf.WriteString(val)
		r.buf.WriteByte('\n')
		return
	}
	r.buf.WriteString(":+")
	r.buf.WriteString(strconv.Itoa(len(val)))
	r.buf.WriteByte('\n')
	r.buf.WriteString(val)
	if n := len(val); n == 0 || val[n-1] != '\n' {
		r.buf.WriteByte('\n')
	}
}

// Get returns the value of the first entry with key
func (r *ReadRecord) Get(key string) (string, bool) {
	for _, e := range r.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// UnmarshalRecord decodes d serialized with Record.Marshal.
// r is re-used if not nil.
func UnmarshalRecord(d []byte, r *ReadRecord) (*ReadRecord, error) {
	if r == nil {
		r = &ReadRecord{}
	}
	r.Name = ""
	r.Timestamp = time.Time{}
	r.Entries = r.Entries[:0]

	for len(d) > 0 {
		line, rest, ok := bytes.Cut(d, []byte{'\n'})
		if !ok {
			return nil, fmt.Errorf("recio: missing '\\n' at the end of '%s'", d)
		}
		d = rest
		key, val, ok := bytes.Cut(line, []byte{':'})
		if !ok || len(val) == 0 {
			return nil, fmt.Errorf("recio: line in unrecognized format: '%s'", line)
		}
		switch val[0] {
		case ' ':
			r.Entries = append(r.Entries, Entry{string(key), string(val[1:])})
		case '+':
			n, err := strconv.Atoi(string(val[1:]))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("recio: invalid length in '%s'", line)
			}
			if n > len(d) {
				return nil, fmt.Errorf("recio: length of value %d greater than remaining data of size %d", n, len(d))
			}
			r.Entries = append(r.Entries, Entry{string(key), string(d[:n])})
			d = d[n:]
			if len(d) > 0 && d[0] == '\n' {
				d = d[1:]
			}
		default:
			return nil, fmt.Errorf("recio: line in unrecognized format: '%s'", line)
		}
	}
	return r, nil
}
