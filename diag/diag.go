// Package diag provides minimal structured diagnostic logging for the
// writer and reader: a thin wrapper over the standard library's log.Logger
// that prefixes each line with key=value fields, in the plain
// log.Printf/log.Println style the rest of this module's ecosystem uses —
// none of it reaches for a third-party structured-logging library.
package diag

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Logger writes prefixed, leveled diagnostic lines to an underlying
// *log.Logger. The zero value is not usable; construct one with New.
type Logger struct {
	std    *log.Logger
	fields []string // "key=value" pairs inherited by every line from this Logger
}

// New returns a Logger writing to w with the standard date/time prefix.
func New(w io.Writer) *Logger {
	return &Logger{std: log.New(w, "", log.LstdFlags)}
}

// With returns a derived Logger that prefixes every subsequent line with
// the given key=value fields in addition to any inherited from l.
func (l *Logger) With(fields ...Field) *Logger {
	next := make([]string, len(l.fields), len(l.fields)+len(fields))
	copy(next, l.fields)
	for _, f := range fields {
		next = append(next, f.String())
	}
	return &Logger{std: l.std, fields: next}
}

// Field is one key=value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// F constructs a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

func (f Field) String() string {
	var b strings.Builder
	b.WriteString(f.Key)
	b.WriteByte('=')
	switch v := f.Value.(type) {
	case string:
		b.WriteString(v)
	default:
		b.WriteString(formatAny(v))
	}
	return b.String()
}

func formatAny(v any) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}

// Info logs msg at informational level with the given fields, e.g. page
// lifecycle transitions and flush boundaries.
func (l *Logger) Info(msg string, fields ...Field) { l.log("INFO", msg, fields) }

// Warn logs msg at warning level, e.g. a recoverable limit-check split.
func (l *Logger) Warn(msg string, fields ...Field) { l.log("WARN", msg, fields) }

// Error logs msg at error level, e.g. a sticky permanent-error entry.
func (l *Logger) Error(msg string, fields ...Field) { l.log("ERROR", msg, fields) }

func (l *Logger) log(level, msg string, fields []Field) {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(level)
	b.WriteString("] ")
	b.WriteString(msg)
	for _, f := range l.fields {
		b.WriteByte(' ')
		b.WriteString(f)
	}
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f.String())
	}
	l.std.Print(b.String())
}
