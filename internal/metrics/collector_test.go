package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()
	c.TrackMessage()
	c.TrackMessage()
	c.TrackDropped()
	c.TrackRotation()
	c.TrackWrite(100, 10*time.Millisecond)
	c.TrackWrite(300, 30*time.Millisecond)

	s := c.Get()
	assert.Equal(t, uint64(2), s.MessagesLogged)
	assert.Equal(t, uint64(1), s.MessagesDropped)
	assert.Equal(t, uint64(1), s.RotationCount)
	assert.Equal(t, uint64(400), s.BytesWritten)
	assert.Equal(t, uint64(2), s.WriteCount)
	assert.Equal(t, 20*time.Millisecond, s.AverageWriteTime)
}

func TestQueueHighWater(t *testing.T) {
	c := NewCollector()
	c.TrackQueueDepth(3)
	c.TrackQueueDepth(7)
	c.TrackQueueDepth(5)
	assert.Equal(t, int64(7), c.Get().QueueHighWater)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.TrackMessage()
				c.TrackQueueDepth(i)
			}
		}()
	}
	wg.Wait()
	s := c.Get()
	assert.Equal(t, uint64(8000), s.MessagesLogged)
	assert.Equal(t, int64(999), s.QueueHighWater)
}
