package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjk/kvstore/recio"

	"github.com/toon-format/toon-go"
)

var (
	log       *WriteDaily
	errorsLog *WriteDaily
	eventsLog *WriteDaily

	// if true, Verbosef() will log messages
	Verbose bool

	// where Logf() prints, nil means no printing
	Out io.Writer = os.Stdout
)

// WriteDaily writes to a file per day, named YYYY-MM-DD.txt
type WriteDaily struct {
	Dir         string
	currentDate int // YYYYMMDD
	file        *os.File
	mu          sync.Mutex
}

func NewWriteDaily(dir string) *WriteDaily {
	return &WriteDaily{
		Dir: dir,
	}
}

func dayFromTime(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// Write writes data to today's log file, creating it if needed.
// It's safe to call on nil receiver.
func (w *WriteDaily) Write(d []byte) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now().UTC()
	today := dayFromTime(now)
	if w.file != nil && w.currentDate != today {
		if err := w.close(); err != nil {
			return err
		}
	}
	if w.file == nil {
		if err := os.MkdirAll(w.Dir, 0755); err != nil {
			return err
		}
		path := filepath.Join(w.Dir, now.Format("2006-01-02")+".txt")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		w.file = f
		w.currentDate = today
	}
	_, err := w.file.Write(d)
	return err
}

// WriteString is like Write. It's safe to call on nil receiver.
func (w *WriteDaily) WriteString(s string) error {
	return w.Write([]byte(s))
}

func (w *WriteDaily) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.currentDate = 0
	return err
}

// Close closes the current file. It's safe to call on nil receiver.
func (w *WriteDaily) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		_ = w.file.Sync()
	}
	return w.close()
}

type Config struct {
	// each log type (regular, errors, events) has its own subdirectory
	Dir string
}

// Init starts logging to files in config.Dir.
// Without Init, messages are only printed.
func Init(config *Config) {
	dir := config.Dir
	log = NewWriteDaily(filepath.Join(dir, "log"))
	errorsLog = NewWriteDaily(filepath.Join(dir, "errors"))
	eventsLog = NewWriteDaily(filepath.Join(dir, "events"))
}

func closeWriteDaily(wd **WriteDaily) {
	if *wd == nil {
		return
	}
	(*wd).Close()
	*wd = nil
}

func Close() {
	closeWriteDaily(&log)
	closeWriteDaily(&errorsLog)
	closeWriteDaily(&eventsLog)
}

func Logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	if Out != nil {
		fmt.Fprint(Out, s)
	}
	log.WriteString(s)
}

func Verbosef(format string, args ...any) {
	if !Verbose {
		return
	}
	Logf(format, args...)
}

func GetCallstack(skip int) string {
	var callers [32]uintptr
	n := runtime.Callers(skip+2, callers[:])
	frames := runtime.CallersFrames(callers[:n])
	var lines []string
	for {
		frame, more := frames.Next()
		lines = append(lines, frame.File+":"+strconv.Itoa(frame.Line))
		if !more {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// Errorf logs an error message along with the callstack.
// It also goes to a separate errors log.
func Errorf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	s = fmt.Sprintf("%s\n%s\n", s, GetCallstack(1))
	Logf("%s", s)
	errorsLog.WriteString(s)
}

// if err != nil, log and return true
// IfErrf(err) => logs err.Error()
// IfErrf(err, "error is: %v", err) => logs message formatted
func IfErrf(err error, a ...any) bool {
	if err == nil {
		return false
	}
	if len(a) == 0 {
		Errorf("%s", err.Error())
		return true
	}
	s, ok := a[0].(string)
	if !ok {
		s = fmt.Sprintf("%s", a[0])
	}
	if len(a) > 1 {
		s = fmt.Sprintf(s, a[1:]...)
	}
	Errorf("%s", s)
	return true
}

// simpleTypeToStr converts simple types to string, keys must not be
// composite values
func simpleTypeToStr(v any) (string, error) {
	switch reflect.TypeOf(v).Kind() {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer:
		return "", fmt.Errorf("log: key %v is of kind %T", v, v)
	case reflect.String:
		return v.(string), nil
	}
	return fmt.Sprintf("%v", v), nil
}

// MarshalEvent encodes key / value pairs in toon format, framed
// as a recio record named name
func MarshalEvent(name string, t time.Time, vals ...any) ([]byte, error) {
	n := len(vals)
	if n%2 != 0 {
		return nil, fmt.Errorf("log: odd number of values (%d) for event '%s'", n, name)
	}
	var d []byte
	if n > 0 {
		m := map[string]any{}
		for i := 0; i < n; i += 2 {
			k, err := simpleTypeToStr(vals[i])
			if err != nil {
				return nil, err
			}
			m[k] = vals[i+1]
		}
		var err error
		d, err = toon.Marshal(m)
		if err != nil {
			return nil, err
		}
	}
	return recio.MarshalLine(name, t, d, nil), nil
}

// Event logs event with key / value pairs to events log
func Event(name string, vals ...any) {
	d, err := MarshalEvent(name, time.Now().UTC(), vals...)
	if err != nil {
		Errorf("%s", err.Error())
		return
	}
	eventsLog.Write(d)
}

func EventWithDuration(name string, dur time.Duration, vals ...any) {
	vals = append(vals, "durmicro", dur.Microseconds())
	Event(name, vals...)
}
