package realtime

import (
	"sync"
	"time"

	"github.com/noah-isme/storefront-api/internal/models"
)

// Client is one live realtime connection. Outbound frames are queued on a bounded buffer
// that a single writer drains; nothing is enqueued once the client is closed.
type Client struct {
	ID          string
	Identity    models.Identity
	ConnectedAt time.Time

	mu     sync.RWMutex
	open   bool
	send   chan []byte
	closed chan struct{}
}

// NewClient creates an open client with the given outbound buffer size.
func NewClient(id string, identity models.Identity, buffer int) *Client {
	if buffer <= 0 {
		buffer = 32
	}
	return &Client{
		ID:          id,
		Identity:    identity,
		ConnectedAt: time.Now().UTC(),
		open:        true,
		send:        make(chan []byte, buffer),
		closed:      make(chan struct{}),
	}
}

// Enqueue queues a frame without blocking. It returns false when the client is closed or
// its buffer is full.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.open {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Outbound exposes the queue drained by the connection writer.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// IsOpen reports whether the client still accepts frames.
func (c *Client) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Close marks the client closed. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return
	}
	c.open = false
	close(c.closed)
}
