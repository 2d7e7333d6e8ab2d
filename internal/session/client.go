package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"codeshare/internal/models"
)

// outboxSize bounds the per-connection send queue. A recipient that falls
// further behind than this loses frames rather than stalling the room.
const outboxSize = 64

// Client is one active connection: the socket, the identity bound at accept
// time, and the room binding (at most one room per connection).
type Client struct {
	ID       string
	Identity models.Identity
	Conn     *websocket.Conn

	mu     sync.Mutex
	hook   func(models.WSFrame)
	roomID string
	closed bool

	out  chan models.WSFrame
	done chan struct{}
}

func NewClient(conn *websocket.Conn, identity models.Identity) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Identity: identity,
		Conn:     conn,
		out:      make(chan models.WSFrame, outboxSize),
		done:     make(chan struct{}),
	}
}

// SetSendHook replaces the WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.WSFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send queues a frame for delivery. It never blocks: if the client's outbox
// is full the frame is dropped and Send reports false.
func (c *Client) Send(frame models.WSFrame) bool {
	c.mu.Lock()
	if c.hook != nil {
		fn := c.hook
		c.mu.Unlock()
		fn(frame)
		return true
	}
	if c.closed || c.Conn == nil {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// WritePump drains the outbox onto the socket. It is the only goroutine that
// writes to the connection and exits on Close or the first write error.
func (c *Client) WritePump() {
	for {
		select {
		case frame := <-c.out:
			if c.Conn == nil {
				continue
			}
			if err := c.Conn.WriteJSON(frame); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close stops delivery to this client. Frames sent afterwards are discarded.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// BindRoom records the room this connection belongs to.
func (c *Client) BindRoom(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// RoomID returns the bound room id, or "" when unbound.
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}
