package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	maxMessageSize = 64 * 1024
)

// Client represents a WebSocket client connection
type Client struct {
	id      string
	subject string

	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan *Message

	logger logrus.FieldLogger
}

// ControlRequest is a subscribe or unsubscribe request from the client.
type ControlRequest struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

func NewClient(hub *Hub, conn *websocket.Conn, subject string) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		subject: subject,
		hub:     hub,
		conn:    conn,
		send:    make(chan *Message, 256),
		logger:  hub.logger.WithField("client_id", id),
	}
}

// readPump pumps control messages from the connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("Unexpected close error")
			}
			return
		}
		c.handleControl(data)
	}
}

func (c *Client) handleControl(data []byte) {
	var req ControlRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("INVALID_MESSAGE", "Failed to parse message")
		return
	}

	switch req.Type {
	case "subscribe":
		if len(req.Channels) == 0 {
			c.sendError("INVALID_SUBSCRIBE", "At least one channel is required")
			return
		}
		c.hub.Subscribe(c, req.Channels)
		c.enqueue(newMessage("ack", "", map[string]any{"subscribed_channels": req.Channels}))
	case "unsubscribe":
		if len(req.Channels) == 0 {
			c.sendError("INVALID_UNSUBSCRIBE", "Channels are required")
			return
		}
		c.hub.Unsubscribe(c, req.Channels)
		c.enqueue(newMessage("ack", "", map[string]any{"unsubscribed_channels": req.Channels}))
	default:
		c.sendError("INVALID_MESSAGE", "Unknown message type: "+req.Type)
	}
}

// writePump pumps messages from the hub to the connection, one JSON
// document per frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.WithError(err).Debug("Write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue sends directly to this client. It holds the hub's read lock so
// it cannot race with the hub closing the send channel.
func (c *Client) enqueue(msg *Message) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("Send buffer full, dropping message")
	}
}

func (c *Client) sendError(code, message string) {
	msg := newMessage("error", "", nil)
	msg.Error = &ErrorDetails{Code: code, Message: message}
	c.enqueue(msg)
}

// Run starts the client's read and write pumps
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}
