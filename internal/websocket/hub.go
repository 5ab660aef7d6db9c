// Package websocket streams live benchmark progress to subscribed clients.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const SchemaVersion = "1.0"

// Hub maintains active WebSocket connections and fans messages out to
// channel subscribers.
type Hub struct {
	clients       map[*Client]bool
	subscriptions map[string]map[*Client]bool

	broadcast chan *Message
	stopped   bool

	logger logrus.FieldLogger
	mu     sync.RWMutex
}

// Message represents a WebSocket message
type Message struct {
	SchemaVersion string         `json:"schema_version"`
	Type          string         `json:"type"`
	Channel       string         `json:"channel,omitempty"`
	EventID       string         `json:"event_id,omitempty"`
	Timestamp     string         `json:"timestamp"`
	Data          map[string]any `json:"data,omitempty"`
	Error         *ErrorDetails  `json:"error,omitempty"`
}

type ErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newMessage(msgType, channel string, data map[string]any) *Message {
	return &Message{
		SchemaVersion: SchemaVersion,
		Type:          msgType,
		Channel:       channel,
		EventID:       uuid.NewString(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Data:          data,
	}
}

func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		broadcast:     make(chan *Message, 256),
		logger:        logger.WithField("component", "websocket"),
	}
}

// Run delivers published messages until ctx is done, then closes every
// client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case message := <-h.broadcast:
			h.deliver(message)

		case <-ctx.Done():
			h.mu.Lock()
			h.stopped = true
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.subscriptions = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return
		}
	}
}

// Register adds a client, returning false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[client] = true
	h.logger.WithField("client_id", client.id).Debug("Client registered")
	return true
}

// Unregister removes a client and closes its send channel. Unknown or
// already removed clients are ignored.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for channel, subscribers := range h.subscriptions {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.subscriptions, channel)
		}
	}
	h.logger.WithField("client_id", client.id).Debug("Client unregistered")
}

// deliver sends a message to the subscribers of its channel, or to every
// client when the channel is empty. Slow clients miss messages rather than
// stall the hub.
func (h *Hub) deliver(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if message.Channel != "" {
		targets = h.subscriptions[message.Channel]
	}
	for client := range targets {
		select {
		case client.send <- message:
		default:
			h.logger.WithField("client_id", client.id).Warn("Client send buffer full, skipping message")
		}
	}
}

func (h *Hub) Subscribe(client *Client, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	for _, channel := range channels {
		if h.subscriptions[channel] == nil {
			h.subscriptions[channel] = make(map[*Client]bool)
		}
		h.subscriptions[channel][client] = true
	}
	h.logger.WithFields(logrus.Fields{"client_id": client.id, "channels": channels}).Debug("Client subscribed")
}

func (h *Hub) Unsubscribe(client *Client, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, channel := range channels {
		if subscribers, ok := h.subscriptions[channel]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.subscriptions, channel)
			}
		}
	}
}

// Publish queues an event for a channel. It never blocks; when the
// broadcast buffer is full the event is dropped.
func (h *Hub) Publish(channel, msgType string, data map[string]any) {
	select {
	case h.broadcast <- newMessage(msgType, channel, data):
	default:
		h.logger.WithField("channel", channel).Warn("Broadcast buffer full, dropping message")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriptionCount returns the number of active subscriptions
func (h *Hub) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, subscribers := range h.subscriptions {
		count += len(subscribers)
	}
	return count
}
