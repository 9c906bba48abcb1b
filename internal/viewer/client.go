package viewer

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sendBuffer = 64

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// enqueue offers a message to the client without blocking. A full send
// buffer means the client cannot keep up.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	close(c.send)
}

// readPump feeds inbound messages to the hub until the connection drops.
// done is the lifecycle channel captured at connect time, so a server
// restart cannot strand this goroutine.
func (s *Server) readPump(c *client, done <-chan struct{}) {
	defer func() {
		select {
		case s.unregister <- c:
		case <-done:
			c.conn.Close()
		}
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[viewer] client %s sent malformed message: %v", c.id, err)
			continue
		}
		select {
		case s.inbound <- inboundMessage{client: c, msg: msg}:
		case <-done:
			return
		}
	}
}
