// Package types holds the small set of types shared by the dispatcher and
// every sink variant: log levels, the log record, and the line format.
package types

import (
	"fmt"
	"time"
)

// Level is a log severity. Error is the most severe; larger values are more
// verbose. A sink with threshold L admits a record when record.Level <= L.
type Level int32

const (
	LevelError Level = iota + 1
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// String returns the canonical upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
}

// Field is one key/value pair attached to a record. Order is preserved.
type Field struct {
	Key   string
	Value string
}

// Record is a single log event. It is immutable once handed to the
// dispatcher and only lives for the duration of one dispatch call; sinks that
// need the content later (buffered file, ring) keep the formatted bytes, not
// the record.
type Record struct {
	Time   time.Time
	Level  Level
	File   string
	Line   int
	Msg    string
	Fields []Field
}

// FormatFunc renders one record into the final line, newline included.
type FormatFunc func(r FormatRecord) string

// FormatRecord is the view handed to a FormatFunc.
type FormatRecord struct {
	Rec        *Record
	TimeLayout string
}

// Time returns the record time rendered with the configured layout.
func (f FormatRecord) Time() string { return f.Rec.Time.Format(f.TimeLayout) }

// Level returns the upper-case level name.
func (f FormatRecord) Level() string { return f.Rec.Level.String() }

// Msg returns the rendered message.
func (f FormatRecord) Msg() string { return f.Rec.Msg }

// File returns the source file, if captured.
func (f FormatRecord) File() string { return f.Rec.File }

// Line returns the source line, if captured.
func (f FormatRecord) Line() int { return f.Rec.Line }

// Key returns ` key=value` for the named field, or "" when absent. The
// leading space makes optional fields concatenate cleanly.
func (f FormatRecord) Key(name string) string {
	for _, kv := range f.Rec.Fields {
		if kv.Key == name {
			return " " + kv.Key + "=" + kv.Value
		}
	}
	return ""
}

// Format pairs a time layout with a line-format function. Formatting always
// happens on the producer side so only finished bytes cross into a sink's
// writer goroutine.
type Format struct {
	TimeLayout string
	Fn         FormatFunc
}

// Process renders rec into its final line.
func (f Format) Process(rec *Record) string {
	return f.Fn(FormatRecord{Rec: rec, TimeLayout: f.TimeLayout})
}

// DefaultTimeLayout is the layout used by the stock formats.
const DefaultTimeLayout = "2006-01-02 15:04:05.000000"

// DefaultFormat renders "[time][LEVEL] msg" plus any fields.
func DefaultFormat() Format {
	return Format{TimeLayout: DefaultTimeLayout, Fn: defaultFormatFn}
}

func defaultFormatFn(r FormatRecord) string {
	line := "[" + r.Time() + "][" + r.Level() + "] " + r.Msg()
	for _, kv := range r.Rec.Fields {
		line += " " + kv.Key + "=" + kv.Value
	}
	return line + "\n"
}
