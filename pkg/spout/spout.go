// Package spout is a process-wide logging backend: one global dispatcher
// fans each log event out to a configured set of sinks (file, buffered file,
// console, network syslog, in-memory ring), with hot reconfiguration for test
// suites, signal-triggered reopening for external log-rotate tools, and
// self-managed rotation with retention and background compression.
//
// The hot path is lock-free: Log loads an immutable snapshot of the sink
// collection and dispatches to every sink whose threshold admits the event.
// Setup is the only synchronized section, and it is guarded by a short
// spin-then-yield gate, never by a blocking mutex.
package spout

import (
	"github.com/pkg/errors"

	"github.com/spoutlog/spout/pkg/types"
)

// Re-exported shared types, so callers only import this package.
type (
	Level        = types.Level
	Record       = types.Record
	Field        = types.Field
	Format       = types.Format
	FormatRecord = types.FormatRecord
	FormatFunc   = types.FormatFunc
)

const (
	LevelError = types.LevelError
	LevelWarn  = types.LevelWarn
	LevelInfo  = types.LevelInfo
	LevelDebug = types.LevelDebug
	LevelTrace = types.LevelTrace
)

// DefaultFormat renders "[time][LEVEL] msg" plus fields.
func DefaultFormat() Format { return types.DefaultFormat() }

// ErrConfigChanged is returned by Setup when a differing configuration
// arrives while the dispatcher runs in immutable (non-dynamic) mode. The
// running configuration is untouched.
var ErrConfigChanged = errors.New("spout: configuration changed under an immutable logger")
