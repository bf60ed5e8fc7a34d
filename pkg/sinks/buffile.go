package sinks

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/spoutlog/spout/internal/fstime"
	"github.com/spoutlog/spout/internal/metrics"
	"github.com/spoutlog/spout/pkg/rotation"
	"github.com/spoutlog/spout/pkg/types"
)

const (
	// DefaultFlushSize keeps a single flush within one filesystem block, so
	// a crash or graceful restart mid-write cannot split a line.
	DefaultFlushSize = 4096

	// DefaultQueueCap bounds the number of outstanding formatted lines.
	DefaultQueueCap = 100

	maxFlushInterval = time.Second
	minFlushInterval = time.Millisecond
)

type bufMsgKind int

const (
	msgLine bufMsgKind = iota
	msgReopen
	msgFlush
)

type bufMsg struct {
	kind bufMsgKind
	line []byte
	done chan struct{} // msgFlush completion signal
}

// BufFileOptions tunes a buffered file sink. Zero values select defaults.
type BufFileOptions struct {
	// FlushSize is the byte threshold that forces a flush, default 4096.
	FlushSize int

	// FlushInterval bounds flush latency under sparse logging. Zero means
	// "flush whenever the queue drains"; anything else is clamped to
	// [1ms, 1s].
	FlushInterval time.Duration

	// QueueCap is the bounded queue capacity, default 100. A full queue
	// blocks producers: deliberate backpressure so a slow disk throttles
	// the application instead of dropping lines or growing memory.
	QueueCap int

	// Rotation enables self-managed rotation when the policy has a trigger.
	Rotation rotation.Policy
}

func (o *BufFileOptions) normalize() {
	if o.FlushSize <= 0 {
		o.FlushSize = DefaultFlushSize
	}
	if o.FlushInterval != 0 {
		if o.FlushInterval < minFlushInterval {
			o.FlushInterval = minFlushInterval
		}
		if o.FlushInterval > maxFlushInterval {
			o.FlushInterval = maxFlushInterval
		}
	}
	if o.QueueCap <= 0 {
		o.QueueCap = DefaultQueueCap
	}
}

// BufFile decouples producers from disk latency: Log only formats the record
// and hands the bytes to a dedicated writer goroutine over a bounded queue.
// That goroutine exclusively owns the file handle, the byte buffer, and the
// rotation engine; nothing else ever touches them.
type BufFile struct {
	level  types.Level
	format types.Format
	path   string
	opts   BufFileOptions
	diag   DiagFunc
	stats  *metrics.Collector

	ch chan bufMsg
	wg sync.WaitGroup

	// sendMu guards ch against Close; producers hold it shared for the
	// duration of one send.
	sendMu sync.RWMutex
	closed bool
}

// NewBufFile creates a buffered file sink for path.
func NewBufFile(path string, level types.Level, format types.Format, opts BufFileOptions, diag DiagFunc, stats *metrics.Collector) *BufFile {
	if diag == nil {
		diag = StderrDiag
	}
	opts.normalize()
	return &BufFile{
		level:  level,
		format: format,
		path:   filepath.Clean(path),
		opts:   opts,
		diag:   diag,
		stats:  stats,
	}
}

// Open opens the file, builds the rotation engine, and starts the writer
// goroutine. The first open happens synchronously so setup can fail cleanly.
func (b *BufFile) Open() error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	if b.ch != nil {
		return nil // already running; repeated setup is idempotent
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return errors.Wrap(err, "create log directory")
	}
	w := &bufWriter{
		path:      b.path,
		flushSize: b.opts.FlushSize,
		buf:       make([]byte, 0, b.opts.FlushSize),
		diag:      b.diag,
		stats:     b.stats,
	}
	if b.opts.Rotation.Enabled() {
		rot, err := rotation.New(b.path, b.opts.Rotation)
		if err != nil {
			return err
		}
		rot.SetErrorFunc(rotation.ErrorFunc(b.diag))
		if b.stats != nil {
			rot.SetMetrics(b.stats)
		}
		w.rot = rot
	}
	if err := w.open(); err != nil {
		return err
	}

	b.ch = make(chan bufMsg, b.opts.QueueCap)
	b.closed = false
	b.wg.Add(1)
	go func(ch chan bufMsg) {
		defer b.wg.Done()
		w.run(ch, b.opts.FlushInterval)
	}(b.ch)
	return nil
}

// send enqueues one message, blocking while the queue is full. Messages sent
// after Close are dropped.
func (b *BufFile) send(m bufMsg) bool {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed || b.ch == nil {
		if b.stats != nil {
			b.stats.TrackDropped()
		}
		return false
	}
	if b.stats != nil {
		b.stats.TrackQueueDepth(len(b.ch) + 1)
	}
	b.ch <- m
	return true
}

func (b *BufFile) Log(rec *types.Record) {
	if rec.Level > b.level {
		return
	}
	// Format on the producer side; only finished bytes cross the queue.
	line := b.format.Process(rec)
	if b.send(bufMsg{kind: msgLine, line: []byte(line)}) && b.stats != nil {
		b.stats.TrackMessage()
	}
}

// Reopen asks the writer to drop its handle and reopen by path; used both by
// the signal listener (external log-rotate) and test hooks.
func (b *BufFile) Reopen() {
	b.send(bufMsg{kind: msgReopen})
}

// Flush enqueues a flush and waits for the writer to complete it, including
// any in-flight archive compression.
func (b *BufFile) Flush() {
	done := make(chan struct{})
	if b.send(bufMsg{kind: msgFlush, done: done}) {
		<-done
	}
}

// Close drains outstanding messages, performs a final flush, and stops the
// writer goroutine.
func (b *BufFile) Close() error {
	b.sendMu.Lock()
	if b.closed || b.ch == nil {
		b.sendMu.Unlock()
		return nil
	}
	b.closed = true
	close(b.ch)
	b.sendMu.Unlock()
	b.wg.Wait()
	return nil
}

// bufWriter is the writer goroutine's exclusively-owned state. Exactly one
// goroutine ever touches these fields.
type bufWriter struct {
	path      string
	file      *os.File
	size      int64 // cumulative bytes since open
	created   time.Time
	buf       []byte
	flushSize int
	rot       *rotation.Rotator
	diag      DiagFunc
	stats     *metrics.Collector
}

// open (re)opens the live file and refreshes size and creation time. On
// failure the sink silently drops writes until the next successful reopen.
func (w *bufWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return errors.Wrap(err, "stat log file")
	}
	if w.file != nil {
		w.file.Close()
	}
	w.file = file
	w.size = fi.Size()
	// POSIX has no portable creation time; fstime falls back to mtime, so
	// age rotation can lag one period after a process restart.
	w.created = fstime.CreationTime(w.path, fi)
	return nil
}

func (w *bufWriter) reopen() {
	if err := w.open(); err != nil {
		w.diag("buffile", w.path, "reopen failed", err)
		if w.file != nil {
			w.file.Close()
			w.file = nil
		}
	}
}

// run is the writer main loop. A positive interval bounds worst-case flush
// latency under sparse logging; interval zero flushes whenever the queue
// drains.
func (w *bufWriter) run(ch <-chan bufMsg, interval time.Duration) {
	defer func() {
		if w.file != nil {
			w.file.Close()
			w.file = nil
		}
	}()

	// Rotation is evaluated immediately: the file may already be over its
	// limits from a previous run.
	w.checkRotate()

	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					w.flush(true)
					return
				}
				w.process(m)
				if !w.drain(ch) {
					w.flush(true)
					return
				}
			case <-ticker.C:
				w.flush(false)
			}
		}
	}

	for {
		m, ok := <-ch
		if !ok {
			w.flush(true)
			return
		}
		w.process(m)
		if !w.drain(ch) {
			w.flush(true)
			return
		}
		w.flush(false)
	}
}

// drain consumes every already-queued message without blocking, batching
// bursts into one flush. Returns false once the queue is closed.
func (w *bufWriter) drain(ch <-chan bufMsg) bool {
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return false
			}
			w.process(m)
		default:
			return true
		}
	}
}

func (w *bufWriter) process(m bufMsg) {
	switch m.kind {
	case msgLine:
		w.append(m.line)
	case msgReopen:
		w.reopen()
	case msgFlush:
		w.flush(true)
		close(m.done)
	}
}

// append buffers one line, flushing around the threshold so no single write
// exceeds flushSize plus one line and buffered memory stays within roughly
// two threshold-widths. With no handle the line is dropped immediately; an
// unopenable path must not grow the backlog.
func (w *bufWriter) append(line []byte) {
	if w.file == nil {
		if w.stats != nil {
			w.stats.TrackDropped()
		}
		return
	}
	if len(w.buf)+len(line) > w.flushSize && len(w.buf) > 0 {
		w.flush(false)
	}
	w.buf = append(w.buf, line...)
	if len(w.buf) >= w.flushSize {
		w.flush(false)
	}
}

// flush writes the whole pending buffer with one direct syscall (os.File is
// unbuffered), then re-evaluates rotation. Waiting on background compression
// is reserved for explicit flushes; the steady-state path never blocks on it.
func (w *bufWriter) flush(wait bool) {
	if len(w.buf) > 0 {
		if w.file == nil {
			// Lines buffered before the handle died have nowhere to go.
			w.buf = w.buf[:0]
		} else {
			start := time.Now()
			n, err := w.file.Write(w.buf)
			if err != nil {
				w.diag("buffile", w.path, "write failed", err)
				if w.stats != nil {
					w.stats.TrackError()
				}
			} else if w.stats != nil {
				w.stats.TrackWrite(n, time.Since(start))
			}
			// Only bytes that reached the file count toward the size trigger.
			w.size += int64(n)
			w.buf = w.buf[:0]
		}
	}
	w.checkRotate()
	if wait && w.rot != nil {
		w.rot.WaitCompression()
	}
}

func (w *bufWriter) checkRotate() {
	if w.rot == nil || w.file == nil {
		return
	}
	if !w.rot.ShouldRotate(w.size, w.created) {
		return
	}
	if err := w.rot.Rotate(); err != nil {
		// Best effort: keep writing to whatever handle we have.
		return
	}
	w.reopen()
}
