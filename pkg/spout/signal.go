package spout

import (
	"os"
	"os/signal"
)

// maybeStartListener starts the signal goroutine on the first Setup that
// carries signals. The listener is process-wide and survives dynamic
// reconfiguration: it always broadcasts to the current snapshot, so there is
// nothing to restart. A second configuration asking for signals is reported
// and ignored.
func (d *dispatcher) maybeStartListener(b *Builder) {
	if len(b.Signals) == 0 {
		return
	}
	if !d.listenerStarted.CompareAndSwap(false, true) {
		d.diag("signal", "", "signal listener already started, keeping the first one", nil)
		return
	}
	ch := make(chan os.Signal, 4)
	sigs := make([]os.Signal, len(b.Signals))
	for i, s := range b.Signals {
		sigs[i] = s
	}
	signal.Notify(ch, sigs...)
	go func() {
		for range ch {
			d.reopen()
		}
	}()
}
