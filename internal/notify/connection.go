package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("connection send buffer full")
)

// sendBufferSize bounds the per-connection outbound queue. A client that
// stops draining its stream fills the buffer and gets dropped by the
// registry instead of blocking delivery to sibling connections.
const sendBufferSize = 16

// Message is one payload pushed down a streaming connection.
// Event is the stream event name ("notification" or "ping"),
// Data the JSON body.
type Message struct {
	Event string
	Data  []byte
}

// Connection is one open streaming channel to one user. It is owned by the
// Registry for its whole lifetime: created by Register, removed on explicit
// Unregister, send failure or heartbeat timeout, whichever comes first.
type Connection struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	send chan Message
	done chan struct{}

	mu         sync.Mutex
	lastActive time.Time
	closeOnce  sync.Once
}

func newConnection(userID string) *Connection {
	now := time.Now()
	return &Connection{
		ID:         uuid.NewString(),
		UserID:     userID,
		CreatedAt:  now,
		lastActive: now,
		send:       make(chan Message, sendBufferSize),
		done:       make(chan struct{}),
	}
}

// Messages returns the delivery sink the transport layer drains.
func (c *Connection) Messages() <-chan Message {
	return c.send
}

// Done is closed when the connection is removed from the registry.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// push hands a message to the sink without blocking. A closed connection or
// a full buffer is a send failure; the registry treats both as a dead peer.
func (c *Connection) push(msg Message) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- msg:
		c.touch()
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// LastActive returns the time of the last successful push.
func (c *Connection) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
