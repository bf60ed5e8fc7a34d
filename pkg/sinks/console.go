package sinks

import (
	"io"
	"os"
	"sync"

	"github.com/spoutlog/spout/internal/metrics"
	"github.com/spoutlog/spout/pkg/types"
)

// Console writes formatted lines to stdout or stderr. Writes are serialized
// with a mutex so interleaved producers cannot shear a line.
type Console struct {
	level  types.Level
	format types.Format
	out    io.Writer
	stats  *metrics.Collector

	mu sync.Mutex
}

// NewConsole creates a console sink. useStderr selects stderr over stdout.
func NewConsole(level types.Level, format types.Format, useStderr bool, stats *metrics.Collector) *Console {
	out := io.Writer(os.Stdout)
	if useStderr {
		out = os.Stderr
	}
	return &Console{level: level, format: format, out: out, stats: stats}
}

func (c *Console) Open() error { return nil }

func (c *Console) Reopen() {}

func (c *Console) Log(rec *types.Record) {
	if rec.Level > c.level {
		return
	}
	line := c.format.Process(rec)
	c.mu.Lock()
	io.WriteString(c.out, line)
	c.mu.Unlock()
	if c.stats != nil {
		c.stats.TrackMessage()
	}
}

func (c *Console) Flush() {}

func (c *Console) Close() error { return nil }
