// Package sinks implements the closed set of log output variants behind one
// capability contract: plain file, buffered file, console, network syslog,
// and an in-memory ring file.
//
// Sinks never return errors from the logging path. Anything that goes wrong
// after a successful Open is reported to the configured DiagFunc and the
// event is dropped; a logging call can never fail the host application.
package sinks

import (
	"fmt"
	"os"

	"github.com/spoutlog/spout/pkg/types"
)

// Sink is the common contract implemented by every output variant.
//
// Open is called exactly once after construction and may fail, aborting
// setup. Reopen may be called any number of times afterwards (signal
// handling, self-rotation, repeated setup) and must never fail the caller.
// Log and Flush are safe for concurrent use from any goroutine.
type Sink interface {
	// Open acquires the sink's OS resources.
	Open() error

	// Reopen re-acquires resources by path, dropping trust in the current
	// handle. For the ring sink this dumps the buffer instead.
	Reopen()

	// Log dispatches one record. Non-blocking except for bounded-queue
	// backpressure on the buffered variants.
	Log(rec *types.Record)

	// Flush forces pending output to its destination and waits for it.
	Flush()

	// Close flushes, releases resources, and stops any writer goroutine.
	Close() error
}

// DiagFunc receives diagnostics from sinks after setup. Runtime sink errors
// are reported here and nowhere else.
type DiagFunc func(component, path, msg string, err error)

// StderrDiag is the default diagnostic stream.
func StderrDiag(component, path, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "spout: %s %s: %s: %v\n", component, path, msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "spout: %s %s: %s\n", component, path, msg)
	}
}
