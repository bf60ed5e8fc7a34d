package spout

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spoutlog/spout/pkg/types"
)

// newRecord captures time and call site for one event. skip counts stack
// frames above the user's call, as for runtime.Caller.
func newRecord(level types.Level, msg string, skip int) *types.Record {
	rec := &types.Record{
		Time:  time.Now(),
		Level: level,
		Msg:   msg,
	}
	if _, file, line, ok := runtime.Caller(skip); ok {
		rec.File = filepath.Base(file)
		rec.Line = line
	}
	return rec
}

// Logf formats and dispatches one event at the given level. Events above
// every sink's threshold cost one atomic load and return.
func Logf(level Level, format string, args ...any) {
	d := global
	if level > Level(d.maxLevel.Load()) {
		return
	}
	d.log(newRecord(level, fmt.Sprintf(format, args...), 2))
}

func logf(level Level, format string, args ...any) {
	d := global
	if level > Level(d.maxLevel.Load()) {
		return
	}
	d.log(newRecord(level, fmt.Sprintf(format, args...), 3))
}

// Errorf logs at Error.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

// Warnf logs at Warn.
func Warnf(format string, args ...any) { logf(LevelWarn, format, args...) }

// Infof logs at Info.
func Infof(format string, args ...any) { logf(LevelInfo, format, args...) }

// Debugf logs at Debug.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Tracef logs at Trace.
func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }

// Flush pushes every sink's pending output out and waits for it to land.
func Flush() { global.flush() }

// Reopen asks every sink to release and re-acquire its destination, as a
// rotate signal would.
func Reopen() { global.reopen() }
