// Package logging provides the leveled key/value logger used across dualrx.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level represents a logging severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "info", "":
		return Info, nil
	case "warn", "warning":
		return Warn, nil
	case "error":
		return Error, nil
	default:
		return Level(0), fmt.Errorf("unsupported log level %q", s)
	}
}

// Format controls how log entries are rendered.
type Format int

const (
	Text Format = iota
	JSON
)

func (f Format) String() string {
	if f == JSON {
		return "json"
	}
	return "text"
}

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "text", "":
		return Text, nil
	default:
		return Format(0), fmt.Errorf("unsupported log format %q", s)
	}
}

// Field is one key/value pair attached to an entry.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Err builds the conventional "err" field.
func Err(err error) Field { return Field{Key: "err", Value: err} }

// Logger defines leveled structured logging operations.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = Nop()
)

// Default returns the process-wide logger. It discards output until
// SetDefault is called.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Nop returns a logger that drops everything.
func Nop() Logger { return New(Error+1, Text, io.Discard) }

// sink serializes writes from a logger and all loggers derived via With.
type sink struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

type baseLogger struct {
	level  Level
	format Format
	fields []Field
	sink   *sink
}

// New constructs a Logger with the given level, format, and output writer.
// Timestamps are UTC.
func New(level Level, format Format, out io.Writer) Logger {
	return &baseLogger{
		level:  level,
		format: format,
		sink:   &sink{out: out, now: time.Now},
	}
}

func (l *baseLogger) With(fields ...Field) Logger {
	combined := make([]Field, 0, len(l.fields)+len(fields))
	combined = append(combined, l.fields...)
	combined = append(combined, fields...)
	return &baseLogger{level: l.level, format: l.format, fields: combined, sink: l.sink}
}

func (l *baseLogger) Debug(msg string, fields ...Field) { l.log(Debug, msg, fields) }
func (l *baseLogger) Info(msg string, fields ...Field)  { l.log(Info, msg, fields) }
func (l *baseLogger) Warn(msg string, fields ...Field)  { l.log(Warn, msg, fields) }
func (l *baseLogger) Error(msg string, fields ...Field) { l.log(Error, msg, fields) }

func (l *baseLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	ts := l.sink.now().UTC()
	var line []byte
	if l.format == JSON {
		line = renderJSON(ts, level, msg, all)
	} else {
		line = renderText(ts, level, msg, all)
	}
	l.sink.mu.Lock()
	_, _ = l.sink.out.Write(line)
	l.sink.mu.Unlock()
}

func renderText(ts time.Time, level Level, msg string, fields []Field) []byte {
	var b strings.Builder
	b.WriteString(ts.Format("2006-01-02T15:04:05.000Z"))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(textValue(f.Value))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func textValue(v any) string {
	switch x := v.(type) {
	case string:
		if x == "" || strings.ContainsAny(x, " \t\n\"=") {
			return strconv.Quote(x)
		}
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', 10, 64)
	case error:
		return strconv.Quote(x.Error())
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func renderJSON(ts time.Time, level Level, msg string, fields []Field) []byte {
	payload := map[string]any{
		"time":  ts.Format(time.RFC3339Nano),
		"level": level.String(),
		"msg":   msg,
	}
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		if err, ok := f.Value.(error); ok && err != nil {
			payload[f.Key] = err.Error()
			continue
		}
		payload[f.Key] = f.Value
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal(map[string]any{
			"time":  ts.Format(time.RFC3339Nano),
			"level": Error.String(),
			"msg":   "marshal log payload failed",
			"err":   err.Error(),
		})
	}
	return append(data, '\n')
}
