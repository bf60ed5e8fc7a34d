package sinks

import (
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/spoutlog/spout/internal/metrics"
	"github.com/spoutlog/spout/pkg/types"
)

// RingFile keeps the newest log content in a fixed-size in-memory ring and
// writes nothing to disk until told to. It exists for debugging deadlocks and
// races that disappear when disk I/O slows the program down: writes cost a
// memcpy under a spin lock, and the accumulated tail is dumped to the
// configured path on Reopen (normally driven by a signal).
type RingFile struct {
	level  types.Level
	format types.Format
	path   string
	diag   DiagFunc
	stats  *metrics.Collector

	// Spin lock: hold times are a short memcpy, so spinning beats parking.
	locked atomic.Bool

	buf     []byte
	pos     int
	wrapped bool
}

// NewRingFile creates a ring sink with a size-byte buffer dumping to path.
func NewRingFile(path string, size int, level types.Level, format types.Format, diag DiagFunc, stats *metrics.Collector) *RingFile {
	if diag == nil {
		diag = StderrDiag
	}
	if size <= 0 {
		size = 1 << 20
	}
	return &RingFile{
		level:  level,
		format: format,
		path:   filepath.Clean(path),
		diag:   diag,
		stats:  stats,
		buf:    make([]byte, size),
	}
}

func (r *RingFile) Open() error { return nil }

func (r *RingFile) lock() {
	for !r.locked.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (r *RingFile) unlock() { r.locked.Store(false) }

func (r *RingFile) Log(rec *types.Record) {
	if rec.Level > r.level {
		return
	}
	line := []byte(r.format.Process(rec))
	if len(line) > len(r.buf) {
		line = line[len(line)-len(r.buf):] // keep the tail
	}
	r.lock()
	for len(line) > 0 {
		n := copy(r.buf[r.pos:], line)
		line = line[n:]
		r.pos += n
		if r.pos == len(r.buf) {
			r.pos = 0
			r.wrapped = true
		}
	}
	r.unlock()
	if r.stats != nil {
		r.stats.TrackMessage()
	}
}

// Reopen dumps the retained content to the configured path, oldest first.
// By the time this runs (a signal after the program wedged) no writer is
// racing us, but the lock is taken regardless.
func (r *RingFile) Reopen() {
	r.lock()
	var content []byte
	if r.wrapped {
		content = make([]byte, 0, len(r.buf))
		content = append(content, r.buf[r.pos:]...)
		content = append(content, r.buf[:r.pos]...)
	} else {
		content = append(content, r.buf[:r.pos]...)
	}
	r.unlock()

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		r.diag("ringfile", r.path, "dump open failed", err)
		return
	}
	defer file.Close()
	if _, err := file.Write(content); err != nil {
		r.diag("ringfile", r.path, "dump write failed", err)
	}
}

func (r *RingFile) Flush() {}

func (r *RingFile) Close() error { return nil }
