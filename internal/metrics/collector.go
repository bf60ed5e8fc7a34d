// Package metrics collects runtime counters for the logging pipeline.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector accumulates counters from sinks and the rotation engine. All
// methods are safe for concurrent use; reads take a point-in-time snapshot.
type Collector struct {
	messagesLogged  atomic.Uint64
	messagesDropped atomic.Uint64

	bytesWritten atomic.Uint64
	writeCount   atomic.Uint64

	rotationCount    atomic.Uint64
	compressionCount atomic.Uint64
	retentionDeletes atomic.Uint64

	errorCount atomic.Uint64

	queueHighWater atomic.Int64

	totalWriteTime atomic.Int64 // nanoseconds
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Snapshot is a point-in-time copy of the collected counters.
type Snapshot struct {
	MessagesLogged  uint64
	MessagesDropped uint64

	BytesWritten uint64
	WriteCount   uint64

	RotationCount    uint64
	CompressionCount uint64
	RetentionDeletes uint64

	ErrorCount uint64

	QueueHighWater int64

	AverageWriteTime time.Duration
}

func (c *Collector) TrackMessage()   { c.messagesLogged.Add(1) }
func (c *Collector) TrackDropped()   { c.messagesDropped.Add(1) }
func (c *Collector) TrackError()     { c.errorCount.Add(1) }
func (c *Collector) TrackRotation()  { c.rotationCount.Add(1) }
func (c *Collector) TrackCompress()  { c.compressionCount.Add(1) }
func (c *Collector) TrackRetention() { c.retentionDeletes.Add(1) }

// TrackWrite records one completed write syscall.
func (c *Collector) TrackWrite(n int, d time.Duration) {
	c.writeCount.Add(1)
	c.bytesWritten.Add(uint64(n))
	c.totalWriteTime.Add(int64(d))
}

// TrackQueueDepth records an observed queue depth, keeping the high-water mark.
func (c *Collector) TrackQueueDepth(depth int) {
	for {
		cur := c.queueHighWater.Load()
		if int64(depth) <= cur {
			return
		}
		if c.queueHighWater.CompareAndSwap(cur, int64(depth)) {
			return
		}
	}
}

// Get returns the current snapshot.
func (c *Collector) Get() Snapshot {
	s := Snapshot{
		MessagesLogged:   c.messagesLogged.Load(),
		MessagesDropped:  c.messagesDropped.Load(),
		BytesWritten:     c.bytesWritten.Load(),
		WriteCount:       c.writeCount.Load(),
		RotationCount:    c.rotationCount.Load(),
		CompressionCount: c.compressionCount.Load(),
		RetentionDeletes: c.retentionDeletes.Load(),
		ErrorCount:       c.errorCount.Load(),
		QueueHighWater:   c.queueHighWater.Load(),
	}
	if s.WriteCount > 0 {
		s.AverageWriteTime = time.Duration(c.totalWriteTime.Load() / int64(s.WriteCount))
	}
	return s
}
