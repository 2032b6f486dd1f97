package realtime

import (
	"sync"

	v1 "predixa/shared/contracts/realtime/v1"
)

// Client is one authenticated websocket connection.
//
// Send is never closed by the server so concurrent broadcasters cannot panic;
// done signals the connection goroutines to stop. Close is idempotent.
type Client struct {
	ID     string
	UserID string
	OrgID  string
	Role   string
	Send   chan v1.Message

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(id, userID, orgID, role string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = wsMinSendQueueSize
	}
	return &Client{
		ID:     id,
		UserID: userID,
		OrgID:  orgID,
		Role:   role,
		Send:   make(chan v1.Message, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// trySend queues m without blocking. It reports false when the client is closing
// or its queue is full.
func (c *Client) trySend(m v1.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- m:
		return true
	default:
		return false
	}
}
