package spout

import (
	"time"

	"github.com/spoutlog/spout/pkg/rotation"
)

// Canned builders for the common setups. Each returns the Builder so callers
// can keep chaining before Setup.

// ConsoleLogger logs to stdout.
func ConsoleLogger(level Level) *Builder {
	return NewBuilder().Console(ConsoleConfig{Level: level})
}

// StderrLogger logs to stderr.
func StderrLogger(level Level) *Builder {
	return NewBuilder().Console(ConsoleConfig{Level: level, Stderr: true})
}

// RawFileLogger appends straight to path with one write per event, safe for
// several processes sharing the file.
func RawFileLogger(path string, level Level) *Builder {
	return NewBuilder().File(FileConfig{Path: path, Level: level})
}

// BufferedFileLogger batches writes to path on a dedicated writer, flushing
// at least every interval, rotating per policy.
func BufferedFileLogger(path string, level Level, interval time.Duration, policy rotation.Policy) *Builder {
	return NewBuilder().BufFile(BufFileConfig{
		Path:          path,
		Level:         level,
		FlushInterval: interval,
		Rotation:      policy,
	})
}

// RingFileDebugLogger keeps the newest size bytes in memory and dumps them to
// path on Reopen. For chasing bugs that hide when disk I/O changes timing.
func RingFileDebugLogger(path string, size int, level Level) *Builder {
	return NewBuilder().RingFile(RingFileConfig{Path: path, Size: size, Level: level})
}
