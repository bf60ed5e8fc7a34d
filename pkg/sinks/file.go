package sinks

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/spoutlog/spout/internal/metrics"
	"github.com/spoutlog/spout/pkg/types"
)

// File is the plain file sink: one O_APPEND write syscall per event. The
// kernel makes each append atomic, so several processes can share the file
// without interleaving partial lines, and an external log-rotate tool can
// rename it out from under us as long as a reopen signal follows.
type File struct {
	level  types.Level
	format types.Format
	path   string
	diag   DiagFunc
	stats  *metrics.Collector

	// handle is swapped whole on Reopen; writers load it for the duration
	// of one syscall.
	handle atomic.Pointer[os.File]
}

// NewFile creates a plain file sink for path. The parent directory is
// created on Open.
func NewFile(path string, level types.Level, format types.Format, diag DiagFunc, stats *metrics.Collector) *File {
	if diag == nil {
		diag = StderrDiag
	}
	return &File{level: level, format: format, path: filepath.Clean(path), diag: diag, stats: stats}
}

func (f *File) Open() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrap(err, "create log directory")
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	if old := f.handle.Swap(file); old != nil {
		old.Close()
	}
	return nil
}

// Reopen re-runs Open, keeping the previous handle when the path has become
// unopenable; writes continue against whatever handle exists.
func (f *File) Reopen() {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		f.diag("file", f.path, "reopen failed", err)
		return
	}
	if old := f.handle.Swap(file); old != nil {
		old.Close()
	}
}

func (f *File) Log(rec *types.Record) {
	if rec.Level > f.level {
		return
	}
	file := f.handle.Load()
	if file == nil {
		if f.stats != nil {
			f.stats.TrackDropped()
		}
		return
	}
	line := f.format.Process(rec)
	start := time.Now()
	n, err := file.WriteString(line)
	if err != nil {
		f.diag("file", f.path, "write failed", err)
		if f.stats != nil {
			f.stats.TrackError()
		}
		return
	}
	if f.stats != nil {
		f.stats.TrackMessage()
		f.stats.TrackWrite(n, time.Since(start))
	}
}

// Flush is a no-op; every Log call is already a completed syscall.
func (f *File) Flush() {}

func (f *File) Close() error {
	if file := f.handle.Swap(nil); file != nil {
		return file.Close()
	}
	return nil
}
