package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrBackpressure = errors.New("backpressure")

// conn wraps one websocket with a buffered outbox. Writes go through
// TrySend so a stalled client sheds messages instead of blocking a
// room-wide broadcast.
type conn struct {
	id    string
	token string // client reconnect token, from the ct cookie
	ws    *websocket.Conn
	send  chan []byte

	mu     sync.RWMutex
	closed bool
}

func newConn(id, token string, ws *websocket.Conn, buffer int) *conn {
	return &conn{
		id:    id,
		token: token,
		ws:    ws,
		send:  make(chan []byte, buffer),
	}
}

func (c *conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}
