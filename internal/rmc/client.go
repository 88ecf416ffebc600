package rmc

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const sendQueueSize = 64

// Client is one websocket session. It satisfies registry.Handle so the
// feature engines can push notifications at it without knowing the
// transport.
type Client struct {
	pid  uint32
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}

	logger zerolog.Logger
}

func newClient(pid uint32, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		pid:    pid,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		logger: logger.With().Uint32("pid", pid).Logger(),
	}
}

// PID returns the authenticated principal id; zero on the auth endpoint
// before login.
func (c *Client) PID() uint32 {
	return c.pid
}

// Notify pushes a server-initiated event at the client. A session whose
// send queue is full is torn down rather than blocked on; the game
// client reconnects.
func (c *Client) Notify(event uint32, payload []byte) {
	frame := encodeFrame(ProtocolNotifications, event, 0, payload)
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.logger.Warn().Uint32("event", event).Msg("send queue full, dropping session")
		_ = c.Disconnect()
	}
}

// Disconnect tears the session down. Safe to call from any goroutine and
// more than once.
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

// writePump drains the send queue onto the socket. It owns all writes;
// closing done is the only way to stop it, and stopping it closes the
// socket, which in turn unblocks the read loop.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				_ = c.Disconnect()
				return
			}
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
