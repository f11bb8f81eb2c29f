package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/nexowatt-vis/internal/hub"
)

// defaultSendBuffer is the per-channel outbound queue size.
const defaultSendBuffer = 256

// queueChannel is the hub side of a subscriber connection. The hub
// enqueues frames without blocking; the transport's writer drains them.
type queueChannel struct {
	id      string
	created time.Time
	send    chan []byte
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newQueueChannel(kind string, size int) *queueChannel {
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &queueChannel{
		id:      kind + "-" + uuid.NewString(),
		created: time.Now(),
		send:    make(chan []byte, size),
		done:    make(chan struct{}),
	}
}

func (c *queueChannel) ID() string { return c.id }

// Send enqueues data. A full queue means the client is not keeping up.
func (c *queueChannel) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return hub.ErrChannelClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return hub.ErrSlowConsumer
	}
}

// Close marks the channel closed and wakes the writer. Safe to repeat.
func (c *queueChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Age returns how long the channel has been open.
func (c *queueChannel) Age() time.Duration {
	return time.Since(c.created)
}

// Done is closed once the channel has been closed.
func (c *queueChannel) Done() <-chan struct{} {
	return c.done
}
