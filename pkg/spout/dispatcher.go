package spout

import (
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/spoutlog/spout/internal/metrics"
	"github.com/spoutlog/spout/pkg/sinks"
	"github.com/spoutlog/spout/pkg/types"
)

// spinGate is the short mutual-exclusion section guarding setup decisions.
// Contention is rare (setup only) and hold times are bounded, so spinning
// with a yield beats parking on an OS mutex. The logging hot path never
// takes it.
type spinGate struct {
	locked atomic.Bool
}

func (g *spinGate) lock() {
	for !g.locked.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (g *spinGate) unlock() { g.locked.Store(false) }

// sinkSet is one immutable snapshot of the live sink collection. Dynamic
// reconfiguration replaces the whole snapshot atomically; a concurrent Log
// sees either the fully-old or fully-new collection, never a mix.
type sinkSet struct {
	sinks []sinks.Sink
}

// dispatcher is the process-wide singleton. Its identity is fixed at first
// successful Setup; only Dynamic mode may replace the sink collection
// afterwards.
type dispatcher struct {
	gate spinGate

	// Written under gate only.
	initialized     bool
	dynamic         bool
	continueOnPanic bool
	checksum        uint64
	diag            sinks.DiagFunc
	panicHook       panicHook

	// Read lock-free on the hot path.
	cur      atomic.Pointer[sinkSet]
	maxLevel atomic.Int32

	listenerStarted atomic.Bool

	stats *metrics.Collector
}

var global = &dispatcher{
	diag:  sinks.StderrDiag,
	stats: metrics.NewCollector(),
}

// Handle is the typed reference to the process dispatcher returned by Setup.
type Handle struct {
	d *dispatcher
}

// Setup installs the configuration on the process-wide dispatcher.
//
// The first successful call fixes the dispatcher's mode. Later calls compare
// configuration checksums: an identical configuration re-opens every sink
// and returns the existing handle; a differing one either hot-swaps the sink
// collection (both sides dynamic) or fails with ErrConfigChanged. Setup is
// all-or-nothing: when any sink fails to open, no state changes.
func Setup(b *Builder) (*Handle, error) {
	d := global
	d.gate.lock()
	defer d.gate.unlock()

	diag := b.DiagHandler
	if diag == nil {
		diag = sinks.StderrDiag
	}
	sum := b.Checksum()

	if d.initialized {
		if sum == d.checksum {
			// Unchanged configuration: repeated setup is idempotent.
			d.reopen()
			return &Handle{d: d}, nil
		}
		if !b.Dynamic || !d.dynamic {
			return nil, ErrConfigChanged
		}
		set, err := buildSinks(b, diag, d.stats)
		if err != nil {
			return nil, err
		}
		old := d.cur.Swap(set)
		d.checksum = sum
		d.diag = diag
		d.continueOnPanic = b.ContinueOnPanic
		d.panicHook = selectPanicHook(b.ContinueOnPanic)
		d.maxLevel.Store(int32(b.maxLevel()))
		// Retire the replaced snapshot: everything already enqueued is
		// flushed before the sinks close. A Log racing the swap with the
		// old snapshot lands in a closed sink and is dropped there.
		if old != nil {
			for _, s := range old.sinks {
				s.Flush()
				s.Close()
			}
		}
		d.maybeStartListener(b)
		return &Handle{d: d}, nil
	}

	set, err := buildSinks(b, diag, d.stats)
	if err != nil {
		return nil, err
	}
	d.cur.Store(set)
	d.checksum = sum
	d.dynamic = b.Dynamic
	d.continueOnPanic = b.ContinueOnPanic
	d.panicHook = selectPanicHook(b.ContinueOnPanic)
	d.diag = diag
	d.maxLevel.Store(int32(b.maxLevel()))
	d.initialized = true
	d.maybeStartListener(b)
	return &Handle{d: d}, nil
}

// buildSinks constructs and opens every sink, closing the partial set on the
// first failure so setup exposes no partial state.
func buildSinks(b *Builder, diag sinks.DiagFunc, stats *metrics.Collector) (*sinkSet, error) {
	env := BuildEnv{Diag: diag, Stats: stats}
	built := make([]sinks.Sink, 0, len(b.configs))
	for _, cfg := range b.configs {
		s := cfg.Build(env)
		if err := s.Open(); err != nil {
			for _, prev := range built {
				prev.Close()
			}
			path, _ := cfg.FilePath()
			return nil, errors.Wrapf(err, "open sink %q", path)
		}
		built = append(built, s)
	}
	return &sinkSet{sinks: built}, nil
}

// ActiveHandle returns the dispatcher handle once Setup has succeeded.
func ActiveHandle() (*Handle, bool) {
	if global.cur.Load() == nil {
		return nil, false
	}
	return &Handle{d: global}, true
}

// log dispatches one record to every sink admitting its level. No locking:
// the snapshot pointer is loaded atomically and iterated as-is. Sink-level
// I/O failures never propagate here.
func (d *dispatcher) log(rec *types.Record) {
	if rec.Level > types.Level(d.maxLevel.Load()) {
		return
	}
	set := d.cur.Load()
	if set == nil {
		return
	}
	for _, s := range set.sinks {
		s.Log(rec)
	}
}

// flush pushes every sink's pending output to its destination and waits.
func (d *dispatcher) flush() {
	set := d.cur.Load()
	if set == nil {
		return
	}
	for _, s := range set.sinks {
		s.Flush()
	}
}

// reopen broadcasts Reopen to the live snapshot.
func (d *dispatcher) reopen() {
	set := d.cur.Load()
	if set == nil {
		return
	}
	for _, s := range set.sinks {
		s.Reopen()
	}
}

// Log dispatches a record through the handle.
func (h *Handle) Log(rec *Record) { h.d.log(rec) }

// Flush flushes every sink; call at shutdown when buffered sinks are in play.
func (h *Handle) Flush() { h.d.flush() }

// Reopen manually triggers the same broadcast a rotate signal would.
func (h *Handle) Reopen() { h.d.reopen() }

// Checksum returns the live configuration checksum.
func (h *Handle) Checksum() uint64 {
	h.d.gate.lock()
	defer h.d.gate.unlock()
	return h.d.checksum
}

// Metrics returns a snapshot of the pipeline counters.
func (h *Handle) Metrics() metrics.Snapshot { return h.d.stats.Get() }
