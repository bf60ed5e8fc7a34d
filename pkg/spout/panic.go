package spout

import (
	"fmt"
	"runtime/debug"

	"github.com/spoutlog/spout/pkg/types"
)

// panicHook decides what happens after a recovered panic has been logged and
// flushed: swallow it or re-raise it.
type panicHook func(v any)

func selectPanicHook(continueOnPanic bool) panicHook {
	if continueOnPanic {
		return func(any) {}
	}
	return func(v any) { panic(v) }
}

// Recover is meant to be deferred at the top of goroutines whose panics must
// reach the log before the process dies. A recovered panic is logged at Error
// with its stack, every sink is flushed, and then the configured hook either
// continues or re-raises the panic.
//
//	defer spout.Recover()
func Recover() {
	v := recover()
	if v == nil {
		return
	}
	d := global
	rec := newRecord(types.LevelError, fmt.Sprintf("panic: %v\n%s", v, debug.Stack()), 3)
	d.log(rec)
	d.flush()
	d.gate.lock()
	hook := d.panicHook
	d.gate.unlock()
	if hook == nil {
		hook = selectPanicHook(false)
	}
	hook(v)
}
