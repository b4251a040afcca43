package realtime

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/sealchat/internal/server/auth"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 << 10
	sendQueueSize  = 256
	closeAuthCode  = 4001
	closeAuthLabel = "authentication required"
)

// Client is one live websocket connection. Frames read from it are handled
// one at a time; everything written to it goes through the send queue.
type Client struct {
	id       string
	conn     *websocket.Conn
	identity auth.Identity
	room     string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, identity auth.Identity, room string) *Client {
	return &Client{
		id:       id,
		conn:     conn,
		identity: identity,
		room:     room,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// enqueue reports false when the connection is closed or its queue is full.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close stops the write pump, which then closes the socket.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump feeds inbound text frames to handle until the socket fails.
func (c *Client) readPump(handle func(data []byte)) {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		handle(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.close()
				return
			}
			w.Write(payload)
			if err := w.Close(); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
