package status

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait   = 10 * time.Second
	sendBuffer  = 64
	maxReadSize = 4096
)

// Client is one connected websocket.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	controller atomic.Int64
	log        *zap.Logger
}

// NewClient creates a client following all controllers.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		log:  hub.log,
	}
	c.controller.Store(AllControllers)
	return c
}

func (c *Client) follows(id int) bool {
	sel := int(c.controller.Load())
	return id == AllControllers || sel == AllControllers || sel == id
}

// WritePump sends queued messages until the hub closes the send channel.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.hub.Unregister(c)
			break
		}
	}
	// drain so the hub never blocks on a dead client
	for range c.send {
	}
}

// ReadPump handles client commands until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxReadSize)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug("bad status client message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "select":
			c.controller.Store(int64(msg.Controller))
			data, err := json.Marshal(NewSelectedMessage(msg.Controller))
			if err == nil {
				c.hub.SendTo(c, data)
			}
		default:
			c.log.Debug("unknown status client message", zap.String("type", msg.Type))
		}
	}
}
